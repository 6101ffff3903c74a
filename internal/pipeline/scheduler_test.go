package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// scriptedRunner returns errs[i] on the i-th call, then nil.
type scriptedRunner struct {
	mu    sync.Mutex
	errs  []error
	calls int
	onRun func(n int)
}

func (r *scriptedRunner) Run(context.Context) (RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.onRun != nil {
		r.onRun(r.calls)
	}
	if r.calls <= len(r.errs) {
		return RunSummary{RunID: "r"}, r.errs[r.calls-1]
	}
	return RunSummary{RunID: "r"}, nil
}

func (r *scriptedRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func zeroRetry() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestRunOnce_RetriesFailedRun(t *testing.T) {
	r := &scriptedRunner{errs: []error{ErrStoreFailed, ErrTooFewSucceeded}}
	s := NewScheduler(r, jobConfig("IBM"), WithRetryBackOff(zeroRetry))
	s.retries = 3

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if r.count() != 3 {
		t.Fatalf("want 3 runs got %d", r.count())
	}
}

func TestRunOnce_GivesUpAfterRetries(t *testing.T) {
	r := &scriptedRunner{errs: []error{ErrStoreFailed, ErrStoreFailed, ErrStoreFailed, ErrStoreFailed, ErrStoreFailed}}
	cfg := jobConfig("IBM")
	cfg.JobRetries = 2
	s := NewScheduler(r, cfg, WithRetryBackOff(zeroRetry))

	_, err := s.RunOnce(context.Background())
	if !errors.Is(err, ErrStoreFailed) {
		t.Fatalf("expected ErrStoreFailed, got %v", err)
	}
	if r.count() != 3 {
		t.Fatalf("want 1 run + 2 retries, got %d", r.count())
	}
}

func TestRunOnce_NoSymbolsNotRetried(t *testing.T) {
	r := &scriptedRunner{errs: []error{ErrNoSymbols}}
	cfg := jobConfig()
	cfg.JobRetries = 3
	s := NewScheduler(r, cfg, WithRetryBackOff(zeroRetry))

	if _, err := s.RunOnce(context.Background()); !errors.Is(err, ErrNoSymbols) {
		t.Fatalf("expected ErrNoSymbols, got %v", err)
	}
	if r.count() != 1 {
		t.Fatalf("want 1 run got %d", r.count())
	}
}

func TestStart_RunsImmediatelyThenOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &scriptedRunner{onRun: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	cfg := jobConfig("IBM")
	cfg.ScheduleInterval = 10 * time.Millisecond
	s := NewScheduler(r, cfg, WithRetryBackOff(zeroRetry))

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
	if r.count() != 3 {
		t.Fatalf("want 3 runs got %d", r.count())
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(&scriptedRunner{}, jobConfig("IBM"))
	if s.interval != 24*time.Hour || s.retries != 0 {
		t.Fatalf("unexpected defaults: interval=%v retries=%d", s.interval, s.retries)
	}
}
