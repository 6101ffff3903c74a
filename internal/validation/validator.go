package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/guregu/null/v6"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/shopspring/decimal"
)

// ErrInvalidPayload is wrapped by every *ValidationError.
var ErrInvalidPayload = errors.New("invalid quote payload")

// ValidationError lists everything wrong with one payload.
type ValidationError struct {
	Symbol   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s for %s: %s", ErrInvalidPayload, e.Symbol, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

// globalQuote mirrors the provider's "Global Quote" object. All values arrive as strings.
type globalQuote struct {
	Symbol        string `json:"01. symbol" validate:"required"`
	Open          string `json:"02. open" validate:"required,numeric"`
	High          string `json:"03. high" validate:"required,numeric"`
	Low           string `json:"04. low" validate:"required,numeric"`
	Price         string `json:"05. price" validate:"required,numeric"`
	Volume        string `json:"06. volume" validate:"required,number"`
	TradingDay    string `json:"07. latest trading day" validate:"required,datetime=2006-01-02"`
	PreviousClose string `json:"08. previous close" validate:"optional_decimal"`
	Change        string `json:"09. change" validate:"optional_decimal"`
	ChangePercent string `json:"10. change percent"`
}

type payload struct {
	GlobalQuote *globalQuote `json:"Global Quote"`
}

// Validator turns raw provider bodies into models.Quote values.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewValidator builds a Validator with the quote rules registered.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("optional_decimal", optionalDecimal)

	return &Validator{validate: v, now: time.Now}
}

func isMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "N/A")
}

func optionalDecimal(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if isMissing(s) {
		return true
	}
	_, err := decimal.NewFromString(strings.TrimSpace(s))
	return err == nil
}

// Validate checks raw against the quote rules for symbol and returns the normalized quote.
func (v *Validator) Validate(raw []byte, symbol string) (models.Quote, error) {
	fail := func(problems ...string) (models.Quote, error) {
		return models.Quote{}, &ValidationError{Symbol: symbol, Problems: problems}
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fail("decoding body: " + err.Error())
	}
	if p.GlobalQuote == nil {
		return fail(`missing "Global Quote" object`)
	}
	gq := p.GlobalQuote

	if err := v.validate.Struct(gq); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fail(err.Error())
		}
		problems := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
		return fail(problems...)
	}

	if !strings.EqualFold(strings.TrimSpace(gq.Symbol), symbol) {
		return fail(fmt.Sprintf("01. symbol %q does not match requested %q", gq.Symbol, symbol))
	}

	volume, err := strconv.ParseInt(gq.Volume, 10, 64)
	if err != nil {
		return fail("06. volume out of range")
	}
	day, err := time.Parse(models.TradingDayLayout, gq.TradingDay)
	if err != nil {
		return fail("07. latest trading day must be a YYYY-MM-DD date")
	}

	var prices [4]decimal.Decimal
	for i, s := range []string{gq.Open, gq.High, gq.Low, gq.Price} {
		if prices[i], err = decimal.NewFromString(s); err != nil {
			return fail("price out of range: " + err.Error())
		}
	}

	q := models.Quote{
		Symbol:        strings.ToUpper(strings.TrimSpace(gq.Symbol)),
		Open:          prices[0],
		High:          prices[1],
		Low:           prices[2],
		Price:         prices[3],
		Volume:        volume,
		TradingDay:    day,
		PreviousClose: optional(gq.PreviousClose),
		Change:        optional(gq.Change),
		FetchedAt:     v.now().UTC(),
	}
	if !isMissing(gq.ChangePercent) {
		q.ChangePercent = null.StringFrom(strings.TrimSpace(gq.ChangePercent))
	}
	return q, nil
}

// optional parses a value already accepted by optional_decimal.
func optional(s string) decimal.NullDecimal {
	if isMissing(s) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.RequireFromString(strings.TrimSpace(s)))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "numeric":
		return fmt.Sprintf("%s must be numeric, got %q", field, fe.Value())
	case "number":
		return fmt.Sprintf("%s must be an unsigned integer, got %q", field, fe.Value())
	case "datetime":
		return fmt.Sprintf("%s must be a YYYY-MM-DD date, got %q", field, fe.Value())
	case "optional_decimal":
		return fmt.Sprintf("%s must be numeric or N/A, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
