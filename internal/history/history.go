// Package history implements the per-handle fraud history store and the
// recurring-fraud detector.
package history

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// DefaultRecurringThreshold is the fraud count at which a handle becomes a
// recurring offender unless configured otherwise.
const DefaultRecurringThreshold = domain.DefaultRecurringThreshold

// IsRecurring reports whether count has reached threshold. A non-positive
// threshold falls back to DefaultRecurringThreshold.
func IsRecurring(count, threshold int64) bool {
	if threshold <= 0 {
		threshold = DefaultRecurringThreshold
	}
	return count >= threshold
}

// New creates the store selected by cfg.Backend. The sqlite and postgres
// backends live in the repository package and are passed in as sql.
func New(cfg domain.HistoryConfig, sql domain.HistoryStore) (domain.HistoryStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		s, err := OpenFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := NewRedisStore(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "postgres":
		if sql == nil {
			return nil, fmt.Errorf("history backend %q requires the repository to be enabled", cfg.Backend)
		}
		return sql, nil
	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.Backend)
	}
}

func validHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("%w: handle is required", domain.ErrInvalidInput)
	}
	return nil
}
