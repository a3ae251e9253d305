package domain

import (
	"time"
)

// Prediction labels.
const (
	LabelFraud  = "Fraud"
	LabelNormal = "Normal"
)

// RiskLevel is an ordinal risk classification.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// RiskLevelFromProbability maps a fraud probability to the five-tier level
// used for model decisions. The mapping is a non-decreasing step function.
func RiskLevelFromProbability(probFraud float64) RiskLevel {
	switch {
	case probFraud < 0.1:
		return RiskVeryLow
	case probFraud < 0.3:
		return RiskLow
	case probFraud < 0.7:
		return RiskMedium
	case probFraud < 0.9:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// RiskLevelFromScore maps a weighted indicator score to the four-tier level
// used for heuristic flag classification.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score < 0.2:
		return RiskLow
	case score < 0.4:
		return RiskMedium
	case score < 0.6:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// PredictionResult is the actionable outcome of scoring one input.
// Invariants: ProbabilityFraud + ProbabilityNormal ≈ 1.0 and
// Confidence == max(ProbabilityFraud, ProbabilityNormal).
type PredictionResult struct {
	ID    string `json:"id"`
	TxID  string `json:"txId,omitempty"`
	Label string `json:"label"` // "Fraud" or "Normal"

	Confidence        float64   `json:"confidence"`
	ProbabilityFraud  float64   `json:"probabilityFraud"`
	ProbabilityNormal float64   `json:"probabilityNormal"`
	RiskLevel         RiskLevel `json:"riskLevel"`

	// Timing/cache metadata
	Cached      bool      `json:"cached"`
	InferenceMs int64     `json:"inferenceMs"`
	CreatedAt   time.Time `json:"createdAt"`

	// Overrides applied after model classification, if any.
	Overrides []AppliedOverride `json:"overrides,omitempty"`
}

// AppliedOverride records a decision-override rule that matched.
type AppliedOverride struct {
	RuleID string    `json:"ruleId"`
	Action string    `json:"action"`
	Reason string    `json:"reason,omitempty"`
	Level  RiskLevel `json:"level,omitempty"` // level forced by the rule, if any
}

// EngineStats reports the inference engine's running counters.
type EngineStats struct {
	TotalPredictions int64   `json:"totalPredictions"`
	CacheHits        int64   `json:"cacheHits"`
	CacheMisses      int64   `json:"cacheMisses"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	AvgInferenceMs   float64 `json:"avgInferenceMs"`
	CacheSize        int     `json:"cacheSize"`
	CacheCapacity    int     `json:"cacheCapacity"`
}

// BatchItem is one entry of a batch scoring response. Batch processing is
// tolerant: each input is scored independently and a failure on one item is
// reported in place without aborting the rest.
type BatchItem struct {
	Index  int               `json:"index"`
	Result *PredictionResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Fields []FieldError      `json:"fields,omitempty"`
}
