package app

import (
	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/health"
	"github.com/guttosm/stockpulse/internal/pipeline"
	"github.com/guttosm/stockpulse/internal/quoteapi"
	"github.com/guttosm/stockpulse/internal/storage"
	"github.com/guttosm/stockpulse/internal/validation"
)

// NewQuoteClient builds the Alpha Vantage client from its config section.
func NewQuoteClient(cfg config.QuoteAPIConfig) *quoteapi.Client {
	opts := []quoteapi.Option{
		quoteapi.WithTimeout(cfg.RequestTimeout),
		quoteapi.WithMinInterval(cfg.MinInterval),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, quoteapi.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, quoteapi.WithMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.RetryDelay > 0 {
		opts = append(opts, quoteapi.WithRetryDelay(cfg.RetryDelay))
	}
	return quoteapi.NewClient(cfg.APIKey, opts...)
}

// NewJob wires fetcher, validator and repository into a pipeline job.
func NewJob(cfg config.JobConfig, fetcher pipeline.Fetcher, repo storage.QuotesRepository) *pipeline.Job {
	return pipeline.NewJob(cfg, fetcher, validation.NewValidator(), repo)
}

// NewHealthChecker builds the health report runner. repo and client may be
// nil when they could not be built; the matching checks then report an error.
func NewHealthChecker(cfg config.Config, repo storage.QuotesRepository, client *quoteapi.Client) *health.Checker {
	var prober health.Prober
	if client != nil {
		prober = client
	}
	return health.NewChecker(cfg, repo, prober)
}
