package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence: scored
// transactions, prediction results, activity history, and override rules.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *RawTransaction) error
	GetTransaction(ctx context.Context, txID string) (*RawTransaction, error)

	// Prediction results
	SavePrediction(ctx context.Context, result *PredictionResult) error
	GetPrediction(ctx context.Context, predictionID string) (*PredictionResult, error)

	// Activity history (feeds the HistoryLookup capability)
	RecordActivity(ctx context.Context, tx *RawTransaction) error
	ActivitySummary(ctx context.Context, customerID, merchantID, country string) (*ActivitySummary, error)

	// Override rule operations
	SaveOverrideRule(ctx context.Context, rule *OverrideRule) error
	GetOverrideRule(ctx context.Context, ruleID string) (*OverrideRule, error)
	ListOverrideRules(ctx context.Context) ([]*OverrideRule, error)
	DeleteOverrideRule(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
