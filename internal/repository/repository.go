// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// SQLRepository stores the prediction audit trail and, when selected as the
// history backend, the per-handle fraud history. One type serves SQLite and
// PostgreSQL; queries are written with ? placeholders and rebound per driver.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

var openers = map[string]func(domain.RepositoryConfig) (*sql.DB, error){
	"sqlite":   openSQLite,
	"postgres": openPostgres,
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	open, ok := openers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	applyPool(db, cfg)

	repo := &SQLRepository{db: db, driver: cfg.Driver, now: time.Now}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return repo, nil
}

func applyPool(db *sql.DB, cfg domain.RepositoryConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// migrate applies every schema statement in one transaction. The
// statements are idempotent, so reopening an existing database is a no-op.
func (r *SQLRepository) migrate(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range AllSchemas() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SavePrediction stores one audit record.
func (r *SQLRepository) SavePrediction(ctx context.Context, p *domain.PredictionRecord) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: prediction id is required", domain.ErrInvalidInput)
	}

	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	query := `
		INSERT INTO predictions (
			id, upi_id, requested_mode, model_used, language, features,
			fraud, risk_score, recurring_fraud, fraud_count,
			explanation, trace_id, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.UPIID, string(p.RequestedMode), string(p.ModelUsed), string(p.Language), string(features),
		boolToInt(p.Fraud), p.RiskScore, boolToInt(p.RecurringFraud), p.FraudCount,
		p.Explanation, p.TraceID, p.DurationMs, p.CreatedAt.UTC(),
	)
	return err
}

const predictionColumns = `
	id, upi_id, requested_mode, model_used, language, features,
	fraud, risk_score, recurring_fraud, fraud_count,
	explanation, trace_id, duration_ms, created_at
`

// GetPrediction retrieves an audit record by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, id string) (*domain.PredictionRecord, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE id = ?`

	p, err := scanPrediction(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPredictionsByHandle returns the newest records for a handle.
func (r *SQLRepository) ListPredictionsByHandle(ctx context.Context, upiID string, limit int) ([]*domain.PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + predictionColumns + `
		FROM predictions
		WHERE upi_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), upiID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*domain.PredictionRecord, error) {
	var p domain.PredictionRecord
	var requested, used, lang, features string
	var fraud, recurring int
	var explanation, traceID sql.NullString

	err := row.Scan(
		&p.ID, &p.UPIID, &requested, &used, &lang, &features,
		&fraud, &p.RiskScore, &recurring, &p.FraudCount,
		&explanation, &traceID, &p.DurationMs, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.RequestedMode = domain.Mode(requested)
	p.ModelUsed = domain.Mode(used)
	p.Language = domain.Language(lang)
	p.Fraud = fraud == 1
	p.RecurringFraud = recurring == 1
	p.Explanation = explanation.String
	p.TraceID = traceID.String
	p.CreatedAt = p.CreatedAt.UTC()

	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features for %s: %w", p.ID, err)
	}
	return &p, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Driver returns the configured driver name.
func (r *SQLRepository) Driver() string {
	return r.driver
}

// rebind rewrites ? placeholders as $n for PostgreSQL. Queries never
// contain a literal question mark.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c != '?' {
			b.WriteRune(c)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
