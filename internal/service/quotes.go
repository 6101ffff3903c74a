package service

import (
	"context"
	"strings"

	"github.com/guttosm/stockpulse/internal/domain/models"
	"github.com/guttosm/stockpulse/internal/storage"
)

// Bounds applied to LatestQuotes.
const (
	DefaultQuoteLimit = 10
	MaxQuoteLimit     = 100
)

// QuoteService exposes read access to what the pipeline has stored.
type QuoteService interface {
	Stats(ctx context.Context) (models.PipelineStats, error)
	LatestQuotes(ctx context.Context, symbol string, limit int) ([]models.Quote, error)
}

type quoteService struct {
	repo storage.QuotesRepository
}

func NewQuoteService(repo storage.QuotesRepository) QuoteService {
	return &quoteService{repo: repo}
}

func (s *quoteService) Stats(ctx context.Context) (models.PipelineStats, error) {
	return s.repo.Stats(ctx)
}

// LatestQuotes normalizes the symbol and clamps limit to [1, MaxQuoteLimit];
// a non-positive limit means DefaultQuoteLimit.
func (s *quoteService) LatestQuotes(ctx context.Context, symbol string, limit int) ([]models.Quote, error) {
	switch {
	case limit <= 0:
		limit = DefaultQuoteLimit
	case limit > MaxQuoteLimit:
		limit = MaxQuoteLimit
	}
	return s.repo.LatestBySymbol(ctx, strings.ToUpper(strings.TrimSpace(symbol)), limit)
}
