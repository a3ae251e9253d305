// Package rules provides the CEL-based decision override engine. Overrides
// run after model classification and can escalate a decision's risk level,
// flag it for manual review, or annotate it. They never lower a level.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// riskLevelOrder maps levels to their ordinal rank for escalation checks.
var riskLevelOrder = map[domain.RiskLevel]int{
	domain.RiskVeryLow:  0,
	domain.RiskLow:      1,
	domain.RiskMedium:   2,
	domain.RiskHigh:     3,
	domain.RiskVeryHigh: 4,
}

// Engine compiles and evaluates override rules. Safe for concurrent use;
// rules can be hot-reloaded while predictions are being scored.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledRule
}

type compiledRule struct {
	rule    *domain.OverrideRule
	program cel.Program
}

// NewEngine creates an override engine with the scoring-context variables
// rules may reference.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("label", cel.StringType),
		cel.Variable("probability_fraud", cel.DoubleType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("country", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("flags", cel.MapType(cel.StringType, cel.BoolType)),
		cel.Variable("flag_score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*compiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.OverrideRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads one rule.
func (e *Engine) LoadRule(rule *domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}
	e.compiled[rule.ID] = compiled
	return nil
}

// UnloadRule removes a rule from the engine.
func (e *Engine) UnloadRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiled, id)
}

// ReloadRules replaces the loaded rule set atomically. Disabled rules are
// skipped. Used for hot-reloading rules from the repository.
func (e *Engine) ReloadRules(rules []*domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}
	e.compiled = next
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// LoadedRules returns the currently loaded rule definitions.
func (e *Engine) LoadedRules() []*domain.OverrideRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.OverrideRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c.rule)
	}
	return rules
}

// DecisionContext carries the transaction attributes and heuristic flags a
// rule may reference alongside the model output.
type DecisionContext struct {
	Amount           float64
	Country          string
	Channel          string
	MerchantCategory string
	Flags            map[string]bool
	FlagScore        float64
}

// Apply evaluates every loaded rule against the result and mutates it in
// place: escalations raise RiskLevel (never lower it), and every match is
// recorded in Overrides. A rule whose evaluation errors is skipped; one bad
// rule must not block decisions.
func (e *Engine) Apply(result *domain.PredictionResult, decCtx *DecisionContext) {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return
	}

	activation := map[string]any{
		"label":             result.Label,
		"probability_fraud": result.ProbabilityFraud,
		"confidence":        result.Confidence,
		"risk_level":        string(result.RiskLevel),
		"amount":            0.0,
		"country":           "",
		"channel":           "",
		"merchant_category": "",
		"flags":             map[string]bool{},
		"flag_score":        0.0,
	}
	if decCtx != nil {
		activation["amount"] = decCtx.Amount
		activation["country"] = decCtx.Country
		activation["channel"] = decCtx.Channel
		activation["merchant_category"] = decCtx.MerchantCategory
		if decCtx.Flags != nil {
			activation["flags"] = decCtx.Flags
		}
		activation["flag_score"] = decCtx.FlagScore
	}

	for _, c := range rules {
		out, _, err := c.program.Eval(activation)
		if err != nil {
			continue
		}
		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}

		applied := domain.AppliedOverride{
			RuleID: c.rule.ID,
			Action: c.rule.Action,
			Reason: c.rule.Reason,
		}

		if c.rule.Action == domain.OverrideEscalate {
			if riskLevelOrder[c.rule.Level] > riskLevelOrder[result.RiskLevel] {
				result.RiskLevel = c.rule.Level
			}
			applied.Level = c.rule.Level
		}
		result.Overrides = append(result.Overrides, applied)
	}
}

// Close clears the loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*compiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.OverrideRule) (*compiledRule, error) {
	if rule.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", rule.ID)
	}
	switch rule.Action {
	case domain.OverrideEscalate:
		if _, ok := riskLevelOrder[rule.Level]; !ok {
			return nil, fmt.Errorf("rule %s: escalate requires a valid level, got %q", rule.ID, rule.Level)
		}
	case domain.OverrideReview, domain.OverrideNote:
	default:
		return nil, fmt.Errorf("rule %s: unknown action %q", rule.ID, rule.Action)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &compiledRule{rule: rule, program: program}, nil
}
