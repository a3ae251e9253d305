package repository

import (
	"context"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// History adapts a Repository into the HistoryLookup capability consumed by
// the feature pipeline.
type History struct {
	repo domain.Repository
}

// NewHistory creates a repository-backed history lookup.
func NewHistory(repo domain.Repository) *History {
	return &History{repo: repo}
}

// Summary returns the customer's aggregated activity, or nil when no
// history exists.
func (h *History) Summary(ctx context.Context, customerID, merchantID, country string) (*domain.ActivitySummary, error) {
	return h.repo.ActivitySummary(ctx, customerID, merchantID, country)
}
