package rules

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestLoadRule(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("ValidRule", func(t *testing.T) {
		rule := &domain.OverrideRule{
			ID:         "r1",
			Name:       "high amount escalation",
			Expression: "amount > 1000.0 && probability_fraud > 0.3",
			Action:     domain.OverrideEscalate,
			Level:      domain.RiskHigh,
			Enabled:    true,
		}
		if err := engine.LoadRule(rule); err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}
		if engine.RulesCount() != 1 {
			t.Errorf("expected 1 rule, got %d", engine.RulesCount())
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		rule := &domain.OverrideRule{
			ID:         "r2",
			Expression: "amount >>> broken",
			Action:     domain.OverrideNote,
		}
		if err := engine.LoadRule(rule); err == nil {
			t.Error("expected compile error for invalid expression")
		}
	})

	t.Run("NonBoolExpression", func(t *testing.T) {
		rule := &domain.OverrideRule{
			ID:         "r3",
			Expression: "amount + 1.0",
			Action:     domain.OverrideNote,
		}
		if err := engine.LoadRule(rule); err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("EscalateWithoutLevel", func(t *testing.T) {
		rule := &domain.OverrideRule{
			ID:         "r4",
			Expression: "true",
			Action:     domain.OverrideEscalate,
		}
		if err := engine.LoadRule(rule); err == nil {
			t.Error("expected error for escalate action without level")
		}
	})

	t.Run("UnknownAction", func(t *testing.T) {
		rule := &domain.OverrideRule{
			ID:         "r5",
			Expression: "true",
			Action:     "block",
		}
		if err := engine.LoadRule(rule); err == nil {
			t.Error("expected error for unknown action")
		}
	})
}

func TestApply(t *testing.T) {
	t.Run("EscalateRaisesLevel", func(t *testing.T) {
		engine := newTestEngine(t)
		_ = engine.LoadRule(&domain.OverrideRule{
			ID:         "esc",
			Expression: "country == 'NG' && probability_fraud > 0.2",
			Action:     domain.OverrideEscalate,
			Level:      domain.RiskHigh,
			Reason:     "high-risk corridor",
			Enabled:    true,
		})

		result := &domain.PredictionResult{
			Label:            domain.LabelNormal,
			ProbabilityFraud: 0.35,
			RiskLevel:        domain.RiskLow,
		}
		engine.Apply(result, &DecisionContext{Country: "NG", Amount: 500})

		if result.RiskLevel != domain.RiskHigh {
			t.Errorf("expected HIGH after escalation, got %s", result.RiskLevel)
		}
		if len(result.Overrides) != 1 {
			t.Fatalf("expected 1 applied override, got %d", len(result.Overrides))
		}
		if result.Overrides[0].RuleID != "esc" || result.Overrides[0].Reason != "high-risk corridor" {
			t.Errorf("unexpected applied override: %+v", result.Overrides[0])
		}
	})

	t.Run("EscalateNeverLowers", func(t *testing.T) {
		engine := newTestEngine(t)
		_ = engine.LoadRule(&domain.OverrideRule{
			ID:         "lower",
			Expression: "true",
			Action:     domain.OverrideEscalate,
			Level:      domain.RiskLow,
			Enabled:    true,
		})

		result := &domain.PredictionResult{RiskLevel: domain.RiskVeryHigh}
		engine.Apply(result, nil)

		if result.RiskLevel != domain.RiskVeryHigh {
			t.Errorf("escalation lowered risk level to %s", result.RiskLevel)
		}
		if len(result.Overrides) != 1 {
			t.Errorf("match should still be recorded, got %d overrides", len(result.Overrides))
		}
	})

	t.Run("ReviewLeavesLevelUnchanged", func(t *testing.T) {
		engine := newTestEngine(t)
		_ = engine.LoadRule(&domain.OverrideRule{
			ID:         "rev",
			Expression: "flags['is_velocity_spike']",
			Action:     domain.OverrideReview,
			Reason:     "velocity spike",
			Enabled:    true,
		})

		result := &domain.PredictionResult{RiskLevel: domain.RiskMedium}
		engine.Apply(result, &DecisionContext{
			Flags: map[string]bool{"is_velocity_spike": true},
		})

		if result.RiskLevel != domain.RiskMedium {
			t.Errorf("review changed risk level to %s", result.RiskLevel)
		}
		if len(result.Overrides) != 1 || result.Overrides[0].Action != domain.OverrideReview {
			t.Errorf("expected one review override, got %+v", result.Overrides)
		}
	})

	t.Run("NoMatchNoOverride", func(t *testing.T) {
		engine := newTestEngine(t)
		_ = engine.LoadRule(&domain.OverrideRule{
			ID:         "nm",
			Expression: "amount > 1e6",
			Action:     domain.OverrideNote,
			Enabled:    true,
		})

		result := &domain.PredictionResult{RiskLevel: domain.RiskLow}
		engine.Apply(result, &DecisionContext{Amount: 10})

		if len(result.Overrides) != 0 {
			t.Errorf("expected no overrides, got %+v", result.Overrides)
		}
	})

	t.Run("NilContextUsesDefaults", func(t *testing.T) {
		engine := newTestEngine(t)
		_ = engine.LoadRule(&domain.OverrideRule{
			ID:         "pf",
			Expression: "probability_fraud > 0.9",
			Action:     domain.OverrideNote,
			Enabled:    true,
		})

		result := &domain.PredictionResult{ProbabilityFraud: 0.95}
		engine.Apply(result, nil)

		if len(result.Overrides) != 1 {
			t.Errorf("expected model-output-only rule to match with nil context")
		}
	})
}

func TestReloadRules(t *testing.T) {
	engine := newTestEngine(t)

	_ = engine.LoadRule(&domain.OverrideRule{
		ID: "old", Expression: "true", Action: domain.OverrideNote, Enabled: true,
	})

	err := engine.ReloadRules([]*domain.OverrideRule{
		{ID: "a", Expression: "amount > 100.0", Action: domain.OverrideNote, Enabled: true},
		{ID: "b", Expression: "true", Action: domain.OverrideNote, Enabled: false},
	})
	if err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload (disabled skipped, old dropped), got %d", engine.RulesCount())
	}

	loaded := engine.LoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "a" {
		t.Errorf("unexpected loaded rules: %+v", loaded)
	}
}

func TestReloadRulesBadRuleKeepsOldSet(t *testing.T) {
	engine := newTestEngine(t)
	_ = engine.LoadRule(&domain.OverrideRule{
		ID: "keep", Expression: "true", Action: domain.OverrideNote, Enabled: true,
	})

	err := engine.ReloadRules([]*domain.OverrideRule{
		{ID: "bad", Expression: "not valid ((", Action: domain.OverrideNote, Enabled: true},
	})
	if err == nil {
		t.Fatal("expected reload error for invalid rule")
	}
	if engine.RulesCount() != 1 {
		t.Errorf("failed reload must keep old rule set, got %d rules", engine.RulesCount())
	}
}
