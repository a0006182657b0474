package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// RecordOutcome upserts the handle's row in a single statement, so
// concurrent calls are serialized by the database.
func (r *SQLRepository) RecordOutcome(ctx context.Context, handle string, isFraud bool) (*domain.HistoryRecord, error) {
	if handle == "" {
		return nil, fmt.Errorf("%w: handle is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO fraud_history (handle, fraud_count, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			fraud_count = fraud_history.fraud_count + excluded.fraud_count,
			last_seen = CASE
				WHEN excluded.last_seen > fraud_history.last_seen THEN excluded.last_seen
				ELSE fraud_history.last_seen
			END
		RETURNING fraud_count, last_seen
	`

	var count, seen int64
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		handle, boolToInt(isFraud), r.now().UnixNano(),
	).Scan(&count, &seen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}

	return &domain.HistoryRecord{FraudCount: count, LastSeen: time.Unix(0, seen).UTC()}, nil
}

// Get returns the history row for handle.
func (r *SQLRepository) Get(ctx context.Context, handle string) (*domain.HistoryRecord, error) {
	query := `SELECT fraud_count, last_seen FROM fraud_history WHERE handle = ?`

	var count, seen int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), handle).Scan(&count, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.HistoryRecord{FraudCount: count, LastSeen: time.Unix(0, seen).UTC()}, nil
}

// Snapshot returns every history row.
func (r *SQLRepository) Snapshot(ctx context.Context) (map[string]domain.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT handle, fraud_count, last_seen FROM fraud_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.HistoryRecord)
	for rows.Next() {
		var handle string
		var count, seen int64
		if err := rows.Scan(&handle, &count, &seen); err != nil {
			return nil, err
		}
		out[handle] = domain.HistoryRecord{FraudCount: count, LastSeen: time.Unix(0, seen).UTC()}
	}
	return out, rows.Err()
}
