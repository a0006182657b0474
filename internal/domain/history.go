package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// HistoryRecord is the fraud history of a single payment handle.
type HistoryRecord struct {
	FraudCount int64     `json:"fraud_count"`
	LastSeen   time.Time `json:"last_seen"`
}

// legacyTimeLayouts are accepted when loading history written without a zone.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts RFC 3339 timestamps and zone-less ISO-8601
// timestamps, which are read as UTC.
func (r *HistoryRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		FraudCount int64  `json:"fraud_count"`
		LastSeen   string `json:"last_seen"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.FraudCount < 0 {
		return fmt.Errorf("%w: negative fraud_count %d", ErrInvalidInput, raw.FraudCount)
	}

	r.FraudCount = raw.FraudCount
	r.LastSeen = time.Time{}
	if raw.LastSeen == "" {
		return nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw.LastSeen); err == nil {
		r.LastSeen = t.UTC()
		return nil
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw.LastSeen, time.UTC); err == nil {
			r.LastSeen = t
			return nil
		}
	}
	return fmt.Errorf("%w: unparseable last_seen %q", ErrInvalidInput, raw.LastSeen)
}

// Observe returns the record after one more observation at now.
// The count only grows and last_seen never moves backwards.
func (r HistoryRecord) Observe(isFraud bool, now time.Time) HistoryRecord {
	next := r
	if isFraud {
		next.FraudCount++
	}
	if now.After(next.LastSeen) {
		next.LastSeen = now.UTC()
	}
	return next
}

// HistoryStore owns the persisted per-handle fraud history.
// Concurrent RecordOutcome calls for the same handle must never lose an update.
type HistoryStore interface {
	// RecordOutcome creates the record if absent, increments the count when
	// isFraud is set, refreshes last_seen and durably persists the result.
	RecordOutcome(ctx context.Context, handle string, isFraud bool) (*HistoryRecord, error)

	// Get returns the record for handle or ErrNotFound.
	Get(ctx context.Context, handle string) (*HistoryRecord, error)

	// Snapshot returns a copy of the full mapping.
	Snapshot(ctx context.Context) (map[string]HistoryRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// HistoryConfig holds configuration for the history store.
type HistoryConfig struct {
	// Backend is one of "file", "sqlite", "postgres" or "redis".
	Backend string `koanf:"backend"`

	// FilePath is the JSON mapping file for the file backend.
	FilePath string `koanf:"file_path"`

	// RecurringThreshold is the fraud count at which a handle is recurring.
	RecurringThreshold int64 `koanf:"recurring_threshold"`

	// Redis settings
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`
}
