package domain

import (
	"context"
)

// ModelFunc is the only boundary between the pipeline and the trained
// classifier: a 30-element vector shaped as a single-row batch in, a
// 2-element probability row [P(Normal), P(Fraud)] out. Any model format
// satisfying this contract is interchangeable. The call may block; callers
// pass a context for cancellation.
type ModelFunc func(ctx context.Context, batch [][]float64) ([][]float64, error)

// ScoreOptions controls per-request scoring behavior.
type ScoreOptions struct {
	// UseCache enables the prediction cache for this request.
	UseCache bool
}

// Scorer scores a validated feature vector into a risk decision. Both the
// local inference engine and the remote scoring client implement it, so the
// pipeline is usable with either behind one capability.
type Scorer interface {
	Score(ctx context.Context, vec *FeatureVector, opts ScoreOptions) (*PredictionResult, error)

	// Health check
	Ping(ctx context.Context) error
}

// ActivitySummary is the recent-activity view the persisted statistics
// collaborator supplies for one (customer, merchant, country) triple.
type ActivitySummary struct {
	MerchantTxCount int64   `json:"merchantTxCount"` // prior transactions at this merchant
	CountryTxCount  int64   `json:"countryTxCount"`  // prior transactions in this country
	TxCountLastHour int64   `json:"txCountLastHour"`
	MeanAmount      float64 `json:"meanAmount"`
	StdAmount       float64 `json:"stdAmount"`
	TxCount         int64   `json:"txCount"`
}

// HistoryLookup supplies durable cross-request activity history for the
// velocity and novelty risk flags. The default implementation is a no-op
// that reports no history, leaving those flags permanently false; swapping
// in a real store changes one dependency, not the calculator's logic.
type HistoryLookup interface {
	Summary(ctx context.Context, customerID, merchantID, country string) (*ActivitySummary, error)
}

// NoopHistory is the all-false default HistoryLookup.
type NoopHistory struct{}

// Summary always reports no history.
func (NoopHistory) Summary(ctx context.Context, customerID, merchantID, country string) (*ActivitySummary, error) {
	return nil, nil
}
