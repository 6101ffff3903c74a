package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// openSQLite returns a migrated file-backed database; an in-memory DSN would
// give each pooled connection its own empty schema.
func openSQLite(t *testing.T) QuotesRepository {
	t.Helper()
	db, err := sql.Open(DialectSQLite.DriverName(), filepath.Join(t.TempDir(), "quotes.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(context.Background(), db, DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewQuotesRepository(db, DialectSQLite)
}

func quoteOn(symbol string, day time.Time, price string) models.Quote {
	p := decimal.RequireFromString(price)
	return models.Quote{
		Symbol:     symbol,
		Open:       p,
		High:       p,
		Low:        p,
		Price:      p,
		Volume:     1000,
		TradingDay: day,
		FetchedAt:  day.Add(21 * time.Hour),
	}
}

func TestSQLite_UpsertIsIdempotent(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := repo.UpsertQuote(ctx, quoteOn("IBM", day, "131.42")); err != nil {
			t.Fatalf("upsert #%d: %v", i, err)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRecords != 1 || stats.UniqueSymbols != 1 || stats.LatestTradingDay != "2024-05-01" {
		t.Fatalf("unexpected stats after repeated upsert: %+v", stats)
	}
}

func TestSQLite_UpsertOverwritesFields(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.UpsertQuote(ctx, quoteOn("IBM", day, "131.42")); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := quoteOn("IBM", day, "133.00")
	second.Volume = 4200
	second.PreviousClose = decimal.NewNullDecimal(decimal.RequireFromString("131.42"))
	second.ChangePercent = null.StringFrom("1.2022%")
	if err := repo.UpsertQuote(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.LatestBySymbol(ctx, "IBM", 10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 row got %d", len(got))
	}
	q := got[0]
	if !q.Price.Equal(decimal.RequireFromString("133")) || q.Volume != 4200 {
		t.Fatalf("fields not overwritten: %+v", q)
	}
	if !q.PreviousClose.Valid || !q.PreviousClose.Decimal.Equal(decimal.RequireFromString("131.42")) {
		t.Fatalf("previous close not stored: %+v", q.PreviousClose)
	}
	if q.Change.Valid {
		t.Fatalf("change should be NULL, got %+v", q.Change)
	}
	if q.ChangePercent.ValueOrZero() != "1.2022%" {
		t.Fatalf("change percent not stored: %v", q.ChangePercent)
	}
	if !q.FetchedAt.Equal(second.FetchedAt) {
		t.Fatalf("fetched_at want %v got %v", second.FetchedAt, q.FetchedAt)
	}
}

func TestSQLite_DecimalsRoundTripExactly(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	const precise = "12345678901234.123456789"
	q := quoteOn("IBM", day, precise)
	q.Change = decimal.NewNullDecimal(decimal.RequireFromString("-0.000000000000000001"))
	if err := repo.UpsertQuote(ctx, q); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.LatestBySymbol(ctx, "IBM", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("latest: %d rows, %v", len(got), err)
	}
	for name, d := range map[string]decimal.Decimal{
		"open": got[0].Open, "high": got[0].High, "low": got[0].Low, "price": got[0].Price,
	} {
		if d.String() != precise {
			t.Fatalf("%s: want %s got %s", name, precise, d.String())
		}
	}
	if !got[0].Change.Valid || got[0].Change.Decimal.String() != "-0.000000000000000001" {
		t.Fatalf("change lost precision: %+v", got[0].Change)
	}
}

func TestSQLite_DeleteOlderThanKeepsCutoffDay(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()
	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	days := []time.Time{
		cutoff.AddDate(0, 0, -10),
		cutoff.AddDate(0, 0, -1),
		cutoff,
		cutoff.AddDate(0, 0, 1),
	}
	for _, d := range days {
		if err := repo.UpsertQuote(ctx, quoteOn("AAPL", d, "180")); err != nil {
			t.Fatalf("upsert %v: %v", d, err)
		}
	}

	n, err := repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 deleted got %d", n)
	}

	left, err := repo.LatestBySymbol(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(left) != 2 || left[0].TradingDayString() != "2024-02-02" || left[1].TradingDayString() != "2024-02-01" {
		t.Fatalf("unexpected remaining rows: %+v", left)
	}

	// nothing older left: second pass is a no-op
	if n, err := repo.DeleteOlderThan(ctx, cutoff); err != nil || n != 0 {
		t.Fatalf("want 0,nil got %d,%v", n, err)
	}
}

func TestSQLite_StatsEmptyAndLimit(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != (models.PipelineStats{}) {
		t.Fatalf("want zero stats on empty table got %+v", stats)
	}

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		for _, sym := range []string{"IBM", "MSFT"} {
			if err := repo.UpsertQuote(ctx, quoteOn(sym, start.AddDate(0, 0, i), "100")); err != nil {
				t.Fatalf("upsert: %v", err)
			}
		}
	}

	stats, err = repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRecords != 10 || stats.UniqueSymbols != 2 || stats.LatestTradingDay != "2024-04-05" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	got, err := repo.LatestBySymbol(ctx, "MSFT", 3)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got) != 3 || got[0].TradingDayString() != "2024-04-05" {
		t.Fatalf("unexpected limited result: %+v", got)
	}

	none, err := repo.LatestBySymbol(ctx, "GOOGL", 3)
	if err != nil || len(none) != 0 {
		t.Fatalf("want empty,nil got %d,%v", len(none), err)
	}
}

func TestSQLite_MigrateIsRepeatable(t *testing.T) {
	db, err := sql.Open(DialectSQLite.DriverName(), filepath.Join(t.TempDir(), "twice.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), db, DialectSQLite); err != nil {
			t.Fatalf("migrate #%d: %v", i, err)
		}
	}
}
