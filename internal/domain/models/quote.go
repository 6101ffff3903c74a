package models

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// TradingDayLayout is the date format used by the provider and by the
// latest_trading_day column.
const TradingDayLayout = "2006-01-02"

// Quote is one normalized row of the stock_quotes table.
//
// Uniqueness is (Symbol, TradingDay): fetching the same symbol for the same
// trading day again updates the existing row.
//
// Optional provider fields are nullable:
//   - PreviousClose, Change: decimal.NullDecimal (NULL when missing or "N/A").
//   - ChangePercent: kept as text, e.g. "-0.1234%".
type Quote struct {
	ID            int64               `json:"id,omitempty"`
	Symbol        string              `json:"symbol" example:"IBM"`
	Open          decimal.Decimal     `json:"open" swaggertype:"string" example:"130.5000"`
	High          decimal.Decimal     `json:"high" swaggertype:"string" example:"132.1000"`
	Low           decimal.Decimal     `json:"low" swaggertype:"string" example:"129.8800"`
	Price         decimal.Decimal     `json:"price" swaggertype:"string" example:"131.4200"`
	Volume        int64               `json:"volume" example:"3200000"`
	TradingDay    time.Time           `json:"latest_trading_day" example:"2024-05-01T00:00:00Z"`
	PreviousClose decimal.NullDecimal `json:"previous_close" swaggertype:"string" example:"130.9000"`
	Change        decimal.NullDecimal `json:"change" swaggertype:"string" example:"0.5200"`
	ChangePercent null.String         `json:"change_percent" swaggertype:"string" example:"0.3972%"`
	FetchedAt     time.Time           `json:"fetched_at"`
}

// TradingDayString renders the trading day as YYYY-MM-DD.
func (q Quote) TradingDayString() string {
	return q.TradingDay.Format(TradingDayLayout)
}
