package pipeline

import (
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar reports whether the market trades on a given day.
type TradingCalendar interface {
	IsTradingDay(t time.Time) bool
}

// ExchangeCalendar is a TradingCalendar backed by scmhub/calendar.
// When the exchange calendar cannot be loaded it falls back to Mon-Fri.
type ExchangeCalendar struct {
	cal *calendar.Calendar
	loc *time.Location
}

// NYSE returns the calendar for the New York Stock Exchange (MIC xnys).
func NYSE() *ExchangeCalendar {
	return NewExchangeCalendar("xnys")
}

// NewExchangeCalendar loads the calendar for an ISO 10383 MIC.
func NewExchangeCalendar(mic string) *ExchangeCalendar {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &ExchangeCalendar{loc: loc}
	}
	return &ExchangeCalendar{cal: cal, loc: cal.Loc}
}

func (c *ExchangeCalendar) IsTradingDay(t time.Time) bool {
	if c.loc != nil {
		t = t.In(c.loc)
	}
	if c.cal == nil {
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return c.cal.IsBusinessDay(t)
}
