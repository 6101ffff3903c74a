package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/logger"
	"github.com/guttosm/stockpulse/internal/storage"
)

var (
	// ErrStoreFailed is returned when at least one database write failed.
	ErrStoreFailed = errors.New("database write failed")
	// ErrTooFewSucceeded is returned when stored/total is below the configured ratio.
	ErrTooFewSucceeded = errors.New("too few symbols succeeded")
	// ErrNoSymbols is returned when the job has nothing to fetch.
	ErrNoSymbols = errors.New("no symbols configured")
)

// Fetcher returns the raw provider body for one symbol.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) ([]byte, error)
}

// Validator turns a raw body into a quote.
type Validator interface {
	Validate(raw []byte, symbol string) (models.Quote, error)
}

// RunSummary describes one execution of the job.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	Total        int           `json:"total"`
	Stored       int           `json:"stored"`
	FetchFailed  []string      `json:"fetch_failed,omitempty"`
	Invalid      []string      `json:"invalid,omitempty"`
	StoreFailed  []string      `json:"store_failed,omitempty"`
	SkippedDay   bool          `json:"skipped_non_trading_day,omitempty"`
	Deleted      int64         `json:"deleted"`
	CleanupError string        `json:"cleanup_error,omitempty"`
}

// SuccessRatio is stored/total, 0 when there were no symbols.
func (s RunSummary) SuccessRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Stored) / float64(s.Total)
}

// Job runs fetch, validate and upsert for every symbol, then the retention cleanup.
type Job struct {
	cfg       config.JobConfig
	fetcher   Fetcher
	validator Validator
	repo      storage.QuotesRepository
	calendar  TradingCalendar
	now       func() time.Time
}

// JobOption customizes a Job.
type JobOption func(*Job)

// WithCalendar overrides the trading calendar (default NYSE).
func WithCalendar(c TradingCalendar) JobOption {
	return func(j *Job) { j.calendar = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) JobOption {
	return func(j *Job) { j.now = now }
}

func NewJob(cfg config.JobConfig, fetcher Fetcher, validator Validator, repo storage.QuotesRepository, opts ...JobOption) *Job {
	j := &Job{
		cfg:       cfg,
		fetcher:   fetcher,
		validator: validator,
		repo:      repo,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.calendar == nil && cfg.SkipNonTradingDays {
		j.calendar = NYSE()
	}
	return j
}

// Run executes the job once.
//
// Behavior:
//   - Symbols are processed sequentially; a failing symbol is logged and skipped.
//   - Cleanup always runs afterwards and only logs a warning when it fails.
//
// Returns:
//   - ErrStoreFailed if any upsert failed.
//   - ErrTooFewSucceeded if nothing was stored or the stored ratio is below MinSuccessRatio.
//   - ErrNoSymbols if the symbol list is empty.
//   - the context error if ctx was cancelled mid-run.
func (j *Job) Run(ctx context.Context) (RunSummary, error) {
	began := time.Now()
	start := j.now()
	summary := RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Total:     len(j.cfg.Symbols),
	}
	log := logger.With("pipeline").With().Str("run_id", summary.RunID).Logger()
	log.Info().Int("symbols", summary.Total).Msg("run start")

	if j.cfg.SkipNonTradingDays && j.calendar != nil && !j.calendar.IsTradingDay(start) {
		summary.SkippedDay = true
		log.Info().Str("day", start.Format(models.TradingDayLayout)).Msg("not a trading day, skipping fetch")
	} else {
		j.ingest(ctx, log, &summary)
	}

	j.cleanup(ctx, log, &summary)

	summary.Elapsed = time.Since(began)
	err := j.outcome(ctx, summary)

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Int("total", summary.Total).
		Int("stored", summary.Stored).
		Int("fetch_failed", len(summary.FetchFailed)).
		Int("invalid", len(summary.Invalid)).
		Int("store_failed", len(summary.StoreFailed)).
		Int64("deleted", summary.Deleted).
		Dur("elapsed", summary.Elapsed).
		Msg("run done")
	return summary, err
}

func (j *Job) ingest(ctx context.Context, log zerolog.Logger, summary *RunSummary) {
	for i, symbol := range j.cfg.Symbols {
		if ctx.Err() != nil {
			log.Warn().Int("remaining", len(j.cfg.Symbols)-i).Msg("run cancelled")
			return
		}
		start := time.Now()
		symLog := log.With().Str("symbol", symbol).Int("idx", i+1).Int("total", summary.Total).Logger()

		raw, err := j.fetcher.Fetch(ctx, symbol)
		if err != nil {
			symLog.Error().Err(err).Msg("fetch failed")
			summary.FetchFailed = append(summary.FetchFailed, symbol)
			continue
		}

		quote, err := j.validator.Validate(raw, symbol)
		if err != nil {
			symLog.Error().Err(err).Msg("invalid payload")
			summary.Invalid = append(summary.Invalid, symbol)
			continue
		}

		if err := j.repo.UpsertQuote(ctx, quote); err != nil {
			symLog.Error().Err(err).Msg("store failed")
			summary.StoreFailed = append(summary.StoreFailed, symbol)
			continue
		}

		summary.Stored++
		symLog.Info().
			Str("price", quote.Price.String()).
			Str("day", quote.TradingDayString()).
			Dur("elapsed", time.Since(start)).
			Msg("quote stored")
	}
}

func (j *Job) cleanup(ctx context.Context, log zerolog.Logger, summary *RunSummary) {
	cutoff := j.now().AddDate(0, 0, -j.cfg.RetentionDays)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		summary.CleanupError = err.Error()
		log.Warn().Err(err).Str("cutoff", cutoff.Format(models.TradingDayLayout)).Msg("cleanup failed")
		return
	}
	summary.Deleted = deleted
	log.Info().Int64("deleted", deleted).Str("cutoff", cutoff.Format(models.TradingDayLayout)).Msg("cleanup done")
}

func (j *Job) outcome(ctx context.Context, s RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.StoreFailed) > 0 {
		return fmt.Errorf("%w: %s", ErrStoreFailed, strings.Join(s.StoreFailed, ", "))
	}
	if s.Total == 0 {
		return ErrNoSymbols
	}
	if s.SkippedDay {
		return nil
	}
	if s.Stored == 0 {
		return fmt.Errorf("%w: 0/%d stored", ErrTooFewSucceeded, s.Total)
	}
	if s.SuccessRatio() < j.cfg.MinSuccessRatio {
		return fmt.Errorf("%w: %d/%d stored", ErrTooFewSucceeded, s.Stored, s.Total)
	}
	return nil
}
