package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guttosm/stockpulse/internal/domain/models"
)

// ErrStore marks every failure that comes from the database.
var ErrStore = errors.New("storage")

// QuotesRepository defines contract for DB operations on stock_quotes.
type QuotesRepository interface {
	UpsertQuote(ctx context.Context, q models.Quote) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	LatestBySymbol(ctx context.Context, symbol string, limit int) ([]models.Quote, error)
	Stats(ctx context.Context) (models.PipelineStats, error)
	Ping(ctx context.Context) error
}

type quotesRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewQuotesRepository(db *sql.DB, dialect Dialect) QuotesRepository {
	return &quotesRepository{db: db, dialect: dialect}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

const upsertQuoteSQL = `
	INSERT INTO stock_quotes (
		symbol, open_price, high_price, low_price, price, volume,
		latest_trading_day, previous_close, change_amount, change_percent, data_timestamp
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (symbol, latest_trading_day)
	DO UPDATE SET open_price = EXCLUDED.open_price,
				  high_price = EXCLUDED.high_price,
				  low_price = EXCLUDED.low_price,
				  price = EXCLUDED.price,
				  volume = EXCLUDED.volume,
				  previous_close = EXCLUDED.previous_close,
				  change_amount = EXCLUDED.change_amount,
				  change_percent = EXCLUDED.change_percent,
				  data_timestamp = EXCLUDED.data_timestamp`

// UpsertQuote inserts a quote or overwrites the row for the same symbol and trading day.
func (r *quotesRepository) UpsertQuote(ctx context.Context, q models.Quote) error {
	fetchedAt := q.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, r.dialect.rebind(upsertQuoteSQL),
		q.Symbol,
		q.Open,
		q.High,
		q.Low,
		q.Price,
		q.Volume,
		q.TradingDayString(),
		q.PreviousClose,
		q.Change,
		q.ChangePercent,
		r.timestampArg(fetchedAt),
	)
	if err != nil {
		return storeErr(fmt.Sprintf("upsert %s %s", q.Symbol, q.TradingDayString()), err)
	}
	return nil
}

// DeleteOlderThan removes rows whose trading day is strictly before cutoff's date.
func (r *quotesRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		r.dialect.rebind(`DELETE FROM stock_quotes WHERE latest_trading_day < $1`),
		cutoff.Format(models.TradingDayLayout),
	)
	if err != nil {
		return 0, storeErr("delete old quotes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("delete old quotes", err)
	}
	return n, nil
}

// LatestBySymbol returns up to limit quotes for symbol, newest trading day first.
func (r *quotesRepository) LatestBySymbol(ctx context.Context, symbol string, limit int) ([]models.Quote, error) {
	query := fmt.Sprintf(`
		SELECT id, symbol, open_price, high_price, low_price, price, volume,
			   %s, previous_close, change_amount, change_percent, data_timestamp
		FROM stock_quotes
		WHERE symbol = $1
		ORDER BY latest_trading_day DESC
		LIMIT $2`, r.dialect.tradingDayExpr("latest_trading_day"))

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), symbol, limit)
	if err != nil {
		return nil, storeErr("query quotes "+symbol, err)
	}
	defer rows.Close()

	var out []models.Quote
	for rows.Next() {
		var (
			q       models.Quote
			day, ts string
		)
		if err := rows.Scan(
			&q.ID, &q.Symbol, &q.Open, &q.High, &q.Low, &q.Price, &q.Volume,
			&day, &q.PreviousClose, &q.Change, &q.ChangePercent, &ts,
		); err != nil {
			return nil, storeErr("scan quote "+symbol, err)
		}
		if q.TradingDay, err = time.Parse(models.TradingDayLayout, day); err != nil {
			return nil, storeErr("parse trading day "+day, err)
		}
		if q.FetchedAt, err = parseTimestamp(ts); err != nil {
			return nil, storeErr("parse data timestamp "+ts, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate quotes "+symbol, err)
	}
	return out, nil
}

// Stats returns the row count, distinct symbols and newest trading day.
func (r *quotesRepository) Stats(ctx context.Context) (models.PipelineStats, error) {
	var stats models.PipelineStats
	query := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT symbol), COALESCE(%s, '')
		FROM stock_quotes`, r.dialect.tradingDayExpr("MAX(latest_trading_day)"))

	err := r.db.QueryRowContext(ctx, query).
		Scan(&stats.TotalRecords, &stats.UniqueSymbols, &stats.LatestTradingDay)
	if err != nil {
		return models.PipelineStats{}, storeErr("pipeline stats", err)
	}
	return stats, nil
}

func (r *quotesRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// timestampArg binds a timestamp. SQLite keeps it as RFC3339 text.
func (r *quotesRepository) timestampArg(t time.Time) any {
	if r.dialect == DialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
