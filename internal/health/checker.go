// Package health builds the operator-facing health report: configuration,
// database reachability, quote API reachability and pipeline statistics.
package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/quoteapi"
)

// Status of a single check.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
)

// Check is one line of the report.
type Check struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Report is the full health report keyed by check name.
type Report struct {
	Timestamp   time.Time `json:"timestamp"`
	Environment Check     `json:"environment"`
	Database    Check     `json:"database"`
	API         Check     `json:"api"`
	Pipeline    Check     `json:"pipeline"`
}

// Healthy is false when the environment, database or API check is in error.
func (r Report) Healthy() bool {
	for _, c := range []Check{r.Environment, r.Database, r.API} {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// Store is the subset of the repository the checker needs.
type Store interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (models.PipelineStats, error)
}

// Prober reaches the quote API without spending quota.
type Prober interface {
	Probe(ctx context.Context) error
}

// Checker runs every check. Store and Prober may be nil when they could not be built.
type Checker struct {
	cfg     config.Config
	store   Store
	prober  Prober
	timeout time.Duration
	now     func() time.Time
}

func NewChecker(cfg config.Config, store Store, prober Prober) *Checker {
	return &Checker{cfg: cfg, store: store, prober: prober, timeout: 10 * time.Second, now: time.Now}
}

// Check runs all checks sequentially, each bounded by its own timeout.
func (c *Checker) Check(ctx context.Context) Report {
	return Report{
		Timestamp:   c.now().UTC(),
		Environment: c.checkEnvironment(),
		Database:    c.checkDatabase(ctx),
		API:         c.checkAPI(ctx),
		Pipeline:    c.checkPipeline(ctx),
	}
}

func (c *Checker) checkEnvironment() Check {
	missing := config.MissingVars(c.cfg)
	if len(missing) > 0 {
		return Check{
			Status:  StatusError,
			Message: "Missing environment variables: " + strings.Join(missing, ", "),
			Details: map[string]any{"missing_vars": missing},
		}
	}
	return Check{Status: StatusOK, Message: "All required environment variables are set"}
}

func (c *Checker) checkDatabase(ctx context.Context) Check {
	if c.store == nil {
		return Check{Status: StatusError, Message: "Database connection failed: not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return Check{Status: StatusError, Message: "Database connection failed: " + err.Error()}
	}
	return Check{
		Status:  StatusOK,
		Message: fmt.Sprintf("Connected to %s", c.cfg.Database.Driver),
	}
}

func (c *Checker) checkAPI(ctx context.Context) Check {
	if config.IsPlaceholder(c.cfg.QuoteAPI.APIKey) {
		return Check{Status: StatusError, Message: "Alpha Vantage API key not configured"}
	}
	if c.prober == nil {
		return Check{Status: StatusError, Message: "API connectivity test failed: no client"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.prober.Probe(ctx)
	switch {
	case err == nil:
		return Check{Status: StatusOK, Message: "Alpha Vantage API is accessible"}
	case errors.Is(err, quoteapi.ErrProvider):
		return Check{Status: StatusWarning, Message: "API returned " + err.Error()}
	default:
		return Check{Status: StatusError, Message: "API connectivity test failed: " + err.Error()}
	}
}

func (c *Checker) checkPipeline(ctx context.Context) Check {
	if c.store == nil {
		return Check{Status: StatusError, Message: "Failed to get pipeline stats: no database"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stats, err := c.store.Stats(ctx)
	if err != nil {
		return Check{Status: StatusError, Message: "Failed to get pipeline stats: " + err.Error()}
	}
	details := map[string]any{
		"total_records":      stats.TotalRecords,
		"unique_symbols":     stats.UniqueSymbols,
		"latest_trading_day": stats.LatestTradingDay,
	}
	if stats.TotalRecords == 0 {
		return Check{Status: StatusInfo, Message: "No quotes stored yet (normal on first run)", Details: details}
	}
	return Check{Status: StatusOK, Message: "Pipeline data available", Details: details}
}
