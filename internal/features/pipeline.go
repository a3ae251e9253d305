package features

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FeatureSet bundles the per-request feature groups extracted from a raw
// transaction, kept alongside the assembled vector for explainability.
// Nil for pre-processed inputs.
type FeatureSet struct {
	Temporal   TemporalFeatures `json:"temporal"`
	Amount     AmountFeatures   `json:"amount"`
	Indicators RiskIndicators   `json:"indicators"`

	// TemporalRisk, AmountRisk and IndicatorRisk are the heuristic
	// per-group scores; IndicatorLevel is the four-tier classification
	// of the flags.
	TemporalRisk   float64          `json:"temporalRisk"`
	AmountRisk     float64          `json:"amountRisk"`
	IndicatorRisk  float64          `json:"indicatorRisk"`
	IndicatorLevel domain.RiskLevel `json:"indicatorLevel"`
}

// Pipeline composes the extractors to turn a scoring input into the exact
// ordered vector the model expects. Pre-processed vectors pass through
// unchanged after validation.
type Pipeline struct {
	scaler   *Scaler
	temporal *TemporalExtractor
	amount   *AmountExtractor
	risk     *RiskCalculator
}

// NewPipeline creates a pipeline anchored at the given reference epoch,
// with an optional history lookup for the cross-request risk flags.
func NewPipeline(reference time.Time, history domain.HistoryLookup) *Pipeline {
	scaler := NewScaler(TrainingScalerParams())
	return &Pipeline{
		scaler:   scaler,
		temporal: NewTemporalExtractor(reference),
		amount:   NewAmountExtractor(scaler),
		risk:     NewRiskCalculator(history),
	}
}

// Scaler exposes the pipeline's scaler.
func (p *Pipeline) Scaler() *Scaler {
	return p.scaler
}

// Risk exposes the risk calculator for runtime list management.
func (p *Pipeline) Risk() *RiskCalculator {
	return p.risk
}

// Process turns an input into a validated 30-slot vector. Raw transactions
// run the full extraction path; pre-processed vectors are validated and
// passed through. The returned FeatureSet is nil for pre-processed inputs.
func (p *Pipeline) Process(ctx context.Context, input domain.Input) (*domain.FeatureVector, *FeatureSet, error) {
	switch input.Kind {
	case domain.InputRaw:
		return p.processRaw(ctx, input.Transaction)
	case domain.InputProcessed:
		if input.Vector == nil {
			return nil, nil, &domain.ValidationError{Fields: []domain.FieldError{
				{Field: "vector", Reason: "missing"},
			}}
		}
		if err := input.Vector.Validate(); err != nil {
			return nil, nil, err
		}
		return input.Vector, nil, nil
	default:
		return nil, nil, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "kind", Reason: "unknown input kind"},
		}}
	}
}

func (p *Pipeline) processRaw(ctx context.Context, tx *domain.RawTransaction) (*domain.FeatureVector, *FeatureSet, error) {
	if tx == nil {
		return nil, nil, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "transaction", Reason: "missing"},
		}}
	}

	var fields []domain.FieldError
	if tx.Timestamp.IsZero() {
		fields = append(fields, domain.FieldError{Field: "timestamp", Reason: "required"})
	}
	if tx.Amount < 0 {
		fields = append(fields, domain.FieldError{Field: "amount", Reason: "must be non-negative"})
	}
	if len(fields) > 0 {
		return nil, nil, &domain.ValidationError{Fields: fields}
	}

	summary, err := p.risk.history.Summary(ctx, tx.CustomerID, tx.MerchantID, tx.Country)
	if err != nil {
		summary = nil
	}

	temporal := p.temporal.Extract(tx.Timestamp)
	amount := p.amount.Extract(tx.Amount)
	indicators := p.risk.CalculateFrom(tx, summary)

	var stats *domain.UserStats
	if summary != nil && summary.TxCount > 0 {
		stats = &domain.UserStats{
			MeanAmount: summary.MeanAmount,
			StdAmount:  summary.StdAmount,
			TxCount:    summary.TxCount,
		}
	}

	set := &FeatureSet{
		Temporal:       temporal,
		Amount:         amount,
		Indicators:     indicators,
		TemporalRisk:   p.temporal.RiskScore(tx.Timestamp),
		AmountRisk:     p.amount.RiskScore(tx.Amount, stats),
		IndicatorRisk:  p.risk.Score(indicators),
		IndicatorLevel: p.risk.Classify(indicators),
	}

	var vec domain.FeatureVector
	vec[domain.SlotTime] = p.scaler.Transform("Time", temporal.SecondsFromFirst)
	vec[domain.SlotAmount] = amount.ScaledAmount
	// No PCA transform is available for raw inputs; the V slots carry the
	// baseline legitimate profile (see baseline.go).
	for i, v := range baselineComponents {
		vec[domain.SlotV1+i] = v
	}

	if err := vec.Validate(); err != nil {
		return nil, nil, err
	}
	return &vec, set, nil
}

// PipelineItem is one entry of a batch extraction: a vector or an error,
// never both.
type PipelineItem struct {
	Index    int
	Vector   *domain.FeatureVector
	Features *FeatureSet
	Err      error
}

// ProcessBatch processes inputs strictly sequentially, producing one item
// per input in input order. The policy is tolerant: an error on one item is
// recorded in place and never aborts the rest of the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []domain.Input) []PipelineItem {
	items := make([]PipelineItem, len(inputs))
	for i, input := range inputs {
		vec, set, err := p.Process(ctx, input)
		items[i] = PipelineItem{Index: i, Vector: vec, Features: set, Err: err}
	}
	return items
}
