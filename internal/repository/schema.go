package repository

// Schema definitions for the FraudGuard database.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    upi_id TEXT NOT NULL,
    requested_mode TEXT NOT NULL,
    model_used TEXT NOT NULL,
    language TEXT NOT NULL,
    features TEXT NOT NULL,
    fraud INTEGER NOT NULL,
    risk_score REAL NOT NULL,
    recurring_fraud INTEGER NOT NULL,
    fraud_count BIGINT NOT NULL,
    explanation TEXT,
    trace_id TEXT,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_upi ON predictions(upi_id);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(upi_id, created_at);
`

// schemaFraudHistory keeps one row per payment handle.
// last_seen is unix nanoseconds so both drivers compare it numerically.
const schemaFraudHistory = `
CREATE TABLE IF NOT EXISTS fraud_history (
    handle TEXT PRIMARY KEY,
    fraud_count BIGINT NOT NULL DEFAULT 0,
    last_seen BIGINT NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPredictions,
		schemaFraudHistory,
	}
}
