package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

// FileStore keeps the history mapping in memory and rewrites the whole JSON
// file after every mutation. Same-handle updates are serialized by a lock
// table; the file write itself is serialized across all handles.
type FileStore struct {
	path  string
	locks *keyLocks

	mu      sync.RWMutex
	records map[string]domain.HistoryRecord

	writeMu sync.Mutex

	now func() time.Time
}

// OpenFile loads the mapping at path, creating an empty file if none exists.
// A file that cannot be parsed is an error.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: history file path is required", domain.ErrInvalidInput)
	}

	s := &FileStore{
		path:    path,
		locks:   newKeyLocks(),
		records: make(map[string]domain.HistoryRecord),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
		if err := s.write(s.records); err != nil {
			return nil, err
		}
		slog.Info("created history file", "path", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("corrupt history file %s: %w", path, err)
		}
		if s.records == nil {
			s.records = make(map[string]domain.HistoryRecord)
		}
	}

	slog.Info("history loaded", "path", path, "handles", len(s.records))
	return s, nil
}

// RecordOutcome applies one observation for handle and persists the full
// mapping before the new value becomes visible.
func (s *FileStore) RecordOutcome(ctx context.Context, handle string, isFraud bool) (*domain.HistoryRecord, error) {
	if err := validHandle(handle); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(handle)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current := s.records[handle]
	s.mu.RUnlock()

	next := current.Observe(isFraud, s.now())

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	pending := make(map[string]domain.HistoryRecord, len(s.records)+1)
	for k, v := range s.records {
		pending[k] = v
	}
	s.mu.RUnlock()
	pending[handle] = next

	if err := s.write(pending); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}

	s.mu.Lock()
	s.records[handle] = next
	s.mu.Unlock()

	return &next, nil
}

// Get returns the record for handle.
func (s *FileStore) Get(ctx context.Context, handle string) (*domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[handle]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Snapshot returns a copy of the mapping.
func (s *FileStore) Snapshot(ctx context.Context) (map[string]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.HistoryRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

// Ping checks the history file is still present.
func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error {
	return nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) write(records map[string]domain.HistoryRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
