package domain

// OverrideRule is an operator-configured decision override: a CEL expression
// evaluated against a scored result that can escalate, force review of, or
// annotate a decision after model classification. Rules never lower a risk
// level below what the model produced.
type OverrideRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over the scored result, e.g.
	// "probability_fraud > 0.4 && country == 'NG'". Must return bool.
	Expression string `json:"expression"`

	// Action taken when the expression matches.
	Action string `json:"action"`

	// Level forced by "escalate" actions; ignored otherwise.
	Level RiskLevel `json:"level,omitempty"`

	// Reason attached to the applied override.
	Reason string `json:"reason,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// Override actions.
const (
	OverrideEscalate = "escalate" // raise the risk level to Level
	OverrideReview   = "review"   // flag for manual review, level unchanged
	OverrideNote     = "note"     // annotate only
)
