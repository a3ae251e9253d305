// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a scored transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.RawTransaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction with ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, timestamp, amount, card_type, merchant_id,
			merchant_category, channel, country, customer_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Timestamp, tx.Amount,
		tx.CardType, tx.MerchantID, tx.MerchantCategory,
		tx.Channel, tx.Country, tx.CustomerID,
		tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.RawTransaction, error) {
	query := `
		SELECT id, timestamp, amount, card_type, merchant_id,
			   merchant_category, channel, country, customer_id, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.RawTransaction
	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Timestamp, &tx.Amount,
		&tx.CardType, &tx.MerchantID, &tx.MerchantCategory,
		&tx.Channel, &tx.Country, &tx.CustomerID,
		&tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// SavePrediction stores a prediction result.
func (r *SQLRepository) SavePrediction(ctx context.Context, result *domain.PredictionResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("%w: prediction with ID is required", ErrInvalidInput)
	}

	overrides, _ := json.Marshal(result.Overrides)

	cached := 0
	if result.Cached {
		cached = 1
	}

	query := `
		INSERT INTO predictions (
			id, tx_id, label, confidence, probability_fraud,
			probability_normal, risk_level, cached, inference_ms,
			overrides, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, result.TxID, result.Label,
		result.Confidence, result.ProbabilityFraud, result.ProbabilityNormal,
		string(result.RiskLevel), cached, result.InferenceMs,
		string(overrides), result.CreatedAt,
	)
	return err
}

// GetPrediction retrieves a prediction result by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, predictionID string) (*domain.PredictionResult, error) {
	query := `
		SELECT id, tx_id, label, confidence, probability_fraud,
			   probability_normal, risk_level, cached, inference_ms,
			   overrides, created_at
		FROM predictions
		WHERE id = ?
	`

	var result domain.PredictionResult
	var riskLevel, overrides string
	var cached int

	err := r.db.QueryRowContext(ctx, r.rebind(query), predictionID).Scan(
		&result.ID, &result.TxID, &result.Label,
		&result.Confidence, &result.ProbabilityFraud, &result.ProbabilityNormal,
		&riskLevel, &cached, &result.InferenceMs,
		&overrides, &result.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result.RiskLevel = domain.RiskLevel(riskLevel)
	result.Cached = cached == 1
	if overrides != "" && overrides != "null" {
		json.Unmarshal([]byte(overrides), &result.Overrides)
	}
	return &result, nil
}

// RecordActivity appends one activity row for the transaction's customer.
// Transactions without a customer ID carry no history key and are skipped.
func (r *SQLRepository) RecordActivity(ctx context.Context, tx *domain.RawTransaction) error {
	if tx == nil {
		return fmt.Errorf("%w: transaction is required", ErrInvalidInput)
	}
	if tx.CustomerID == "" {
		return nil
	}

	query := `
		INSERT INTO activity (customer_id, merchant_id, country, amount, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.CustomerID, tx.MerchantID, tx.Country, tx.Amount, tx.Timestamp,
	)
	return err
}

// ActivitySummary aggregates a customer's recorded activity. Returns nil
// with no error when the customer has no history, which downstream treats
// as "flags stay false".
func (r *SQLRepository) ActivitySummary(ctx context.Context, customerID, merchantID, country string) (*domain.ActivitySummary, error) {
	if customerID == "" {
		return nil, nil
	}

	// Mean and variance in one pass: Var(X) = E[X^2] - E[X]^2.
	query := `
		SELECT COUNT(*),
		       COALESCE(AVG(amount), 0),
		       COALESCE(AVG(amount * amount), 0)
		FROM activity
		WHERE customer_id = ?
	`

	var txCount int64
	var mean, meanSq float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerID).Scan(&txCount, &mean, &meanSq)
	if err != nil {
		return nil, err
	}
	if txCount == 0 {
		return nil, nil
	}

	summary := &domain.ActivitySummary{
		TxCount:    txCount,
		MeanAmount: mean,
	}
	if variance := meanSq - mean*mean; variance > 0 {
		summary.StdAmount = math.Sqrt(variance)
	}

	if merchantID != "" {
		countQuery := `SELECT COUNT(*) FROM activity WHERE customer_id = ? AND merchant_id = ?`
		if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), customerID, merchantID).Scan(&summary.MerchantTxCount); err != nil {
			return nil, err
		}
	}
	if country != "" {
		countQuery := `SELECT COUNT(*) FROM activity WHERE customer_id = ? AND country = ?`
		if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), customerID, country).Scan(&summary.CountryTxCount); err != nil {
			return nil, err
		}
	}

	hourQuery := `SELECT COUNT(*) FROM activity WHERE customer_id = ? AND timestamp >= ?`
	since := time.Now().UTC().Add(-time.Hour)
	if err := r.db.QueryRowContext(ctx, r.rebind(hourQuery), customerID, since).Scan(&summary.TxCountLastHour); err != nil {
		return nil, err
	}

	return summary, nil
}

// SaveOverrideRule stores or updates an override rule.
func (r *SQLRepository) SaveOverrideRule(ctx context.Context, rule *domain.OverrideRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO override_rules (
			id, name, description, version, expression, action,
			level, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			action = excluded.action,
			level = excluded.level,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Action, string(rule.Level), rule.Reason,
		enabled, now, now,
	)
	return err
}

// GetOverrideRule retrieves an override rule by ID.
func (r *SQLRepository) GetOverrideRule(ctx context.Context, ruleID string) (*domain.OverrideRule, error) {
	query := `
		SELECT id, name, description, version, expression, action, level, reason, enabled
		FROM override_rules
		WHERE id = ?
	`

	rule, err := r.scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListOverrideRules retrieves all override rules, enabled or not.
func (r *SQLRepository) ListOverrideRules(ctx context.Context) ([]*domain.OverrideRule, error) {
	query := `
		SELECT id, name, description, version, expression, action, level, reason, enabled
		FROM override_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.OverrideRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteOverrideRule removes an override rule.
func (r *SQLRepository) DeleteOverrideRule(ctx context.Context, ruleID string) error {
	query := `DELETE FROM override_rules WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.rebind(query), ruleID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRule(row rowScanner) (*domain.OverrideRule, error) {
	var rule domain.OverrideRule
	var level string
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Version,
		&rule.Expression, &rule.Action, &level, &rule.Reason,
		&enabled,
	)
	if err != nil {
		return nil, err
	}

	rule.Level = domain.RiskLevel(level)
	rule.Enabled = enabled == 1
	return &rule, nil
}

func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
