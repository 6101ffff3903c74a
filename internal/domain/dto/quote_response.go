package dto

import "github.com/guttosm/stockpulse/internal/domain/models"

// QuoteResponse represents one stored quote as returned by
// GET /api/v1/quotes/{symbol}.
//
// Prices are rendered as fixed 4-decimal strings to match the NUMERIC(10,4)
// storage and avoid float rounding on the wire.
type QuoteResponse struct {
	Symbol        string  `json:"symbol" example:"IBM"`
	Open          string  `json:"open" example:"130.5000"`
	High          string  `json:"high" example:"132.1000"`
	Low           string  `json:"low" example:"129.8800"`
	Price         string  `json:"price" example:"131.4200"`
	Volume        int64   `json:"volume" example:"3200000"`
	TradingDay    string  `json:"latest_trading_day" example:"2024-05-01"`
	PreviousClose *string `json:"previous_close,omitempty" example:"130.9000"`
	Change        *string `json:"change,omitempty" example:"0.5200"`
	ChangePercent *string `json:"change_percent,omitempty" example:"0.3972%"`
	FetchedAt     string  `json:"fetched_at" example:"2024-05-01T21:00:00Z"`
}

// QuotesResponse wraps a list of quotes for one symbol.
type QuotesResponse struct {
	Symbol string          `json:"symbol" example:"IBM"`
	Quotes []QuoteResponse `json:"quotes"`
}

// NewQuoteResponse maps a domain quote to its API representation.
func NewQuoteResponse(q models.Quote) QuoteResponse {
	resp := QuoteResponse{
		Symbol:     q.Symbol,
		Open:       q.Open.StringFixed(4),
		High:       q.High.StringFixed(4),
		Low:        q.Low.StringFixed(4),
		Price:      q.Price.StringFixed(4),
		Volume:     q.Volume,
		TradingDay: q.TradingDayString(),
		FetchedAt:  q.FetchedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if q.PreviousClose.Valid {
		s := q.PreviousClose.Decimal.StringFixed(4)
		resp.PreviousClose = &s
	}
	if q.Change.Valid {
		s := q.Change.Decimal.StringFixed(4)
		resp.Change = &s
	}
	resp.ChangePercent = q.ChangePercent.Ptr()
	return resp
}
