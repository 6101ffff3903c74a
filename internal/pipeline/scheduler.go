package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/logger"
)

// Runner is anything that executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (RunSummary, error)
}

// Scheduler runs a job immediately and then on a fixed interval.
// Runs never overlap: the next tick is only armed once the previous run returns.
type Scheduler struct {
	job        Runner
	interval   time.Duration
	retries    int
	newBackOff func() backoff.BackOff
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRetryBackOff replaces the constant retry delay between failed runs.
func WithRetryBackOff(fn func() backoff.BackOff) SchedulerOption {
	return func(s *Scheduler) { s.newBackOff = fn }
}

func NewScheduler(job Runner, cfg config.JobConfig, opts ...SchedulerOption) *Scheduler {
	delay := cfg.JobRetryDelay
	s := &Scheduler{
		job:        job,
		interval:   cfg.ScheduleInterval,
		retries:    cfg.JobRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(delay) },
	}
	if s.interval <= 0 {
		s.interval = 24 * time.Hour
	}
	if s.retries < 0 {
		s.retries = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce executes the job, retrying a failed run up to the configured number of times.
func (s *Scheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	log := logger.With("scheduler")

	var (
		summary RunSummary
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		summary, err = s.job.Run(ctx)
		if errors.Is(err, ErrNoSymbols) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).
			Str("run_id", summary.RunID).
			Int("attempt", attempt).
			Int("max_attempts", s.retries+1).
			Dur("retry_in", wait).
			Msg("run failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.retries)), ctx)
	err := backoff.RetryNotify(op, policy, notify)
	if err != nil {
		log.Error().Err(err).Str("run_id", summary.RunID).Int("attempts", attempt).Msg("run failed")
	}
	return summary, err
}

// Start blocks until ctx is cancelled. Run failures are logged, never returned.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logger.With("scheduler")
	log.Info().Dur("interval", s.interval).Int("retries", s.retries).Msg("scheduler start")

	for {
		_, _ = s.RunOnce(ctx)

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}
