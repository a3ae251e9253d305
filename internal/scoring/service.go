// Package scoring orchestrates a scoring request end to end: feature
// extraction, model inference, override rules, persistence and event
// publication. Both the HTTP API and the async worker delegate here so the
// two entry points cannot drift apart.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// alertThreshold is the lowest risk level that triggers an alert event.
const alertThreshold = domain.RiskHigh

var riskLevelRank = map[domain.RiskLevel]int{
	domain.RiskVeryLow:  0,
	domain.RiskLow:      1,
	domain.RiskMedium:   2,
	domain.RiskHigh:     3,
	domain.RiskVeryHigh: 4,
}

// Service wires the pipeline, scorer and override engine together.
// Repository and bus are optional: a nil repository skips persistence, a nil
// bus skips event publication. Scoring itself never fails on either.
type Service struct {
	pipeline  *features.Pipeline
	scorer    domain.Scorer
	overrides *rules.Engine
	repo      domain.Repository
	bus       domain.EventBus
	logger    *slog.Logger
}

// NewService creates the scoring orchestrator.
func NewService(pipeline *features.Pipeline, scorer domain.Scorer, overrides *rules.Engine, repo domain.Repository, bus domain.EventBus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pipeline:  pipeline,
		scorer:    scorer,
		overrides: overrides,
		repo:      repo,
		bus:       bus,
		logger:    logger.With("component", "scoring"),
	}
}

// Pipeline exposes the feature pipeline for debug endpoints.
func (s *Service) Pipeline() *features.Pipeline {
	return s.pipeline
}

// Score runs one input through the full path and returns the decision plus
// the extracted features (nil for pre-processed inputs).
func (s *Service) Score(ctx context.Context, input domain.Input, opts domain.ScoreOptions) (*domain.PredictionResult, *features.FeatureSet, error) {
	vec, feats, err := s.pipeline.Process(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.scorer.Score(ctx, vec, opts)
	if err != nil {
		return nil, nil, err
	}

	var tx *domain.RawTransaction
	if input.Kind == domain.InputRaw {
		tx = input.Transaction
		result.TxID = tx.ID
	}

	s.applyOverrides(result, tx, feats)
	s.persist(ctx, tx, result)
	s.publish(ctx, result)

	return result, feats, nil
}

// ScoreBatch scores inputs independently in order; a failure on one item is
// reported in place without aborting the rest.
func (s *Service) ScoreBatch(ctx context.Context, inputs []domain.Input, opts domain.ScoreOptions) []domain.BatchItem {
	items := make([]domain.BatchItem, len(inputs))
	for i, input := range inputs {
		items[i].Index = i
		result, _, err := s.Score(ctx, input, opts)
		if err != nil {
			items[i].Error = err.Error()
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				items[i].Fields = verr.Fields
			}
			continue
		}
		items[i].Result = result
	}
	return items
}

// applyOverrides runs the override rules with whatever decision context the
// input mode provides. Pre-processed vectors carry no transaction
// attributes, so their rules see only the model output.
func (s *Service) applyOverrides(result *domain.PredictionResult, tx *domain.RawTransaction, feats *features.FeatureSet) {
	if s.overrides == nil {
		return
	}

	var decCtx *rules.DecisionContext
	if tx != nil {
		decCtx = &rules.DecisionContext{
			Amount:           tx.Amount,
			Country:          tx.Country,
			Channel:          tx.Channel,
			MerchantCategory: tx.MerchantCategory,
		}
		if feats != nil {
			decCtx.Flags = feats.Indicators.FlagMap()
			decCtx.FlagScore = feats.IndicatorRisk
		}
	}
	s.overrides.Apply(result, decCtx)
}

// persist stores the transaction, its activity row and the decision.
// Failures are logged and swallowed: a completed scoring decision is worth
// more than write durability here.
func (s *Service) persist(ctx context.Context, tx *domain.RawTransaction, result *domain.PredictionResult) {
	if s.repo == nil {
		return
	}

	if tx != nil {
		if err := s.repo.SaveTransaction(ctx, tx); err != nil {
			s.logger.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
		if err := s.repo.RecordActivity(ctx, tx); err != nil {
			s.logger.Error("failed to record activity", "tx_id", tx.ID, "error", err)
		}
	}
	if err := s.repo.SavePrediction(ctx, result); err != nil {
		s.logger.Error("failed to save prediction", "prediction_id", result.ID, "error", err)
	}
}

// publish emits the decision event, plus an alert when the final risk level
// reaches the alert threshold.
func (s *Service) publish(ctx context.Context, result *domain.PredictionResult) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := s.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		s.logger.Error("failed to publish decision", "prediction_id", result.ID, "error", err)
	}

	if riskLevelRank[result.RiskLevel] >= riskLevelRank[alertThreshold] {
		if err := s.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			s.logger.Error("failed to publish alert", "prediction_id", result.ID, "error", err)
		}
	}
}
