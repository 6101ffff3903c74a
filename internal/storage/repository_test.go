package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/guregu/null/v6"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/shopspring/decimal"
)

type dummyErr struct{}

func (dummyErr) Error() string { return "dummy" }

func newMockRepo(t *testing.T, dialect Dialect) (*quotesRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	repo := &quotesRepository{db: db, dialect: dialect}
	cleanup := func() { _ = db.Close() }
	return repo, mock, cleanup
}

func sampleQuote() models.Quote {
	return models.Quote{
		Symbol:        "IBM",
		Open:          decimal.RequireFromString("130.50"),
		High:          decimal.RequireFromString("132.10"),
		Low:           decimal.RequireFromString("129.88"),
		Price:         decimal.RequireFromString("131.42"),
		Volume:        3200000,
		TradingDay:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PreviousClose: decimal.NewNullDecimal(decimal.RequireFromString("130.90")),
		Change:        decimal.NewNullDecimal(decimal.RequireFromString("0.52")),
		ChangePercent: null.StringFrom("0.3972%"),
		FetchedAt:     time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC),
	}
}

func TestUpsertQuote_SQLMock(t *testing.T) {
	repo, mock, done := newMockRepo(t, DialectPostgres)
	defer done()

	upsert := regexp.MustCompile(`INSERT INTO stock_quotes .* ON CONFLICT \(symbol, latest_trading_day\)\s+DO UPDATE`)

	// ok
	mock.ExpectExec(upsert.String()).
		WithArgs("IBM", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			int64(3200000), "2024-05-01", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := repo.UpsertQuote(context.Background(), sampleQuote()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// db error is wrapped with ErrStore
	mock.ExpectExec(upsert.String()).WillReturnError(dummyErr{})
	err := repo.UpsertQuote(context.Background(), sampleQuote())
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if !errors.As(err, new(dummyErr)) {
		t.Fatalf("expected underlying error to be preserved, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertQuote_SQLitePlaceholders(t *testing.T) {
	repo, mock, done := newMockRepo(t, DialectSQLite)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := repo.UpsertQuote(context.Background(), sampleQuote()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteOlderThan_SQLMock(t *testing.T) {
	repo, mock, done := newMockRepo(t, DialectPostgres)
	defer done()

	cutoff := time.Date(2024, 2, 1, 15, 30, 0, 0, time.UTC)
	del := regexp.QuoteMeta(`DELETE FROM stock_quotes WHERE latest_trading_day < $1`)

	mock.ExpectExec(del).WithArgs("2024-02-01").WillReturnResult(sqlmock.NewResult(0, 7))
	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil || n != 7 {
		t.Fatalf("want 7,nil got %d,%v", n, err)
	}

	mock.ExpectExec(del).WithArgs("2024-02-01").WillReturnError(dummyErr{})
	if _, err := repo.DeleteOlderThan(context.Background(), cutoff); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStats_SQLMock(t *testing.T) {
	cases := []struct {
		name    string
		dialect Dialect
		pattern string
	}{
		{name: "postgres", dialect: DialectPostgres, pattern: `COALESCE\(TO_CHAR\(MAX\(latest_trading_day\), 'YYYY-MM-DD'\), ''\)`},
		{name: "sqlite", dialect: DialectSQLite, pattern: `COALESCE\(MAX\(latest_trading_day\), ''\)`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock, done := newMockRepo(t, tc.dialect)
			defer done()

			rows := sqlmock.NewRows([]string{"count", "symbols", "latest"}).AddRow(int64(360), int64(4), "2024-05-01")
			mock.ExpectQuery(tc.pattern).WillReturnRows(rows)

			got, err := repo.Stats(context.Background())
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			want := models.PipelineStats{TotalRecords: 360, UniqueSymbols: 4, LatestTradingDay: "2024-05-01"}
			if got != want {
				t.Fatalf("want %+v got %+v", want, got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestLatestBySymbol_SQLMock(t *testing.T) {
	repo, mock, done := newMockRepo(t, DialectPostgres)
	defer done()

	cols := []string{"id", "symbol", "open_price", "high_price", "low_price", "price", "volume",
		"latest_trading_day", "previous_close", "change_amount", "change_percent", "data_timestamp"}
	rows := sqlmock.NewRows(cols).
		AddRow(int64(2), "IBM", []byte("130.5000"), []byte("132.1000"), []byte("129.8800"), []byte("131.4200"),
			int64(3200000), "2024-05-01", []byte("130.9000"), nil, "0.3972%", "2024-05-01T21:00:00Z").
		AddRow(int64(1), "IBM", []byte("129.0000"), []byte("131.0000"), []byte("128.5000"), []byte("130.9000"),
			int64(2900000), "2024-04-30", nil, nil, nil, "2024-04-30 21:00:00")

	mock.ExpectQuery(`SELECT id, symbol, .* FROM stock_quotes\s+WHERE symbol = \$1\s+ORDER BY latest_trading_day DESC\s+LIMIT \$2`).
		WithArgs("IBM", 10).
		WillReturnRows(rows)

	got, err := repo.LatestBySymbol(context.Background(), "IBM", 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 quotes got %d", len(got))
	}
	first := got[0]
	if first.TradingDayString() != "2024-05-01" || !first.Price.Equal(decimal.RequireFromString("131.42")) {
		t.Fatalf("unexpected first quote: %+v", first)
	}
	if !first.PreviousClose.Valid || first.Change.Valid {
		t.Fatalf("unexpected nullable decimals: %+v", first)
	}
	if first.ChangePercent.ValueOrZero() != "0.3972%" {
		t.Fatalf("unexpected change percent: %v", first.ChangePercent)
	}
	if got[1].ChangePercent.Valid {
		t.Fatalf("expected NULL change percent, got %v", got[1].ChangePercent)
	}
	if !got[1].FetchedAt.Equal(time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected fetched_at: %v", got[1].FetchedAt)
	}

	// query error
	mock.ExpectQuery(`SELECT id, symbol`).WillReturnError(dummyErr{})
	if _, err := repo.LatestBySymbol(context.Background(), "IBM", 10); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPing_SQLMock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewQuotesRepository(db, DialectPostgres)

	mock.ExpectPing()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	mock.ExpectPing().WillReturnError(dummyErr{})
	if err := repo.Ping(context.Background()); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestParseDialect(t *testing.T) {
	for _, in := range []string{"postgres", "sqlite"} {
		d, err := ParseDialect(in)
		if err != nil || string(d) != in {
			t.Fatalf("ParseDialect(%q) = %q, %v", in, d, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT 1 WHERE a = $1 AND b = $2 LIMIT $10`
	if got := DialectPostgres.rebind(q); got != q {
		t.Fatalf("postgres rebind changed query: %s", got)
	}
	if got := DialectSQLite.rebind(q); got != `SELECT 1 WHERE a = ? AND b = ? LIMIT ?` {
		t.Fatalf("sqlite rebind: %s", got)
	}
}
