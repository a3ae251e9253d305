package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    card_type TEXT,
    merchant_id TEXT,
    merchant_category TEXT,
    channel TEXT,
    country TEXT,
    customer_id TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    tx_id TEXT,
    label TEXT NOT NULL,
    confidence REAL NOT NULL,
    probability_fraud REAL NOT NULL,
    probability_normal REAL NOT NULL,
    risk_level TEXT NOT NULL,
    cached INTEGER NOT NULL DEFAULT 0,
    inference_ms INTEGER NOT NULL DEFAULT 0,
    overrides TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_tx ON predictions(tx_id);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`

// schemaActivity backs the history lookup: one row per scored transaction,
// aggregated at read time into per-customer activity summaries.
const schemaActivity = `
CREATE TABLE IF NOT EXISTS activity (
    customer_id TEXT NOT NULL,
    merchant_id TEXT,
    country TEXT,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_customer ON activity(customer_id);
CREATE INDEX IF NOT EXISTS idx_activity_customer_ts ON activity(customer_id, timestamp);
`

const schemaOverrideRules = `
CREATE TABLE IF NOT EXISTS override_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT,
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    level TEXT,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_override_rules_enabled ON override_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaPredictions,
		schemaActivity,
		schemaOverrideRules,
	}
}
