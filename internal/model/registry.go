package model

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/features"
)

// Registry holds at most one classifier per mode. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	models map[domain.Mode]Classifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[domain.Mode]Classifier)}
}

// LoadRegistry loads the fast and accurate artifacts named in cfg. A missing
// artifact leaves its mode unloaded; a malformed one is an error.
func LoadRegistry(cfg domain.ModelsConfig) (*Registry, error) {
	r := NewRegistry()

	paths := map[domain.Mode]string{
		domain.ModeFast:     cfg.FastPath,
		domain.ModeAccurate: cfg.AccuratePath,
	}
	for _, mode := range domain.KnownModes {
		path := paths[mode]
		if path == "" {
			slog.Warn("no artifact configured for mode", "mode", mode)
			continue
		}

		clf, err := LoadFile(path)
		if errors.Is(err, ErrArtifactMissing) {
			slog.Warn("model artifact missing, mode unavailable", "mode", mode, "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", mode, err)
		}
		if err := r.Register(mode, clf); err != nil {
			return nil, err
		}
		slog.Info("model loaded", "mode", mode, "name", clf.Name(), "path", path, "features", clf.NumFeatures())
	}

	if !r.Any() {
		slog.Warn("no models loaded, predictions will be refused")
	}
	return r, nil
}

// Register installs clf for mode after checking its input width matches the
// feature builder.
func (r *Registry) Register(mode domain.Mode, clf Classifier) error {
	if want := features.Width(mode); clf.NumFeatures() != want {
		return fmt.Errorf("%w: %s model expects %d features, builder produces %d",
			ErrFeatureWidth, mode, clf.NumFeatures(), want)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[mode] = clf
	return nil
}

// Loaded reports whether a classifier is installed for mode.
func (r *Registry) Loaded(mode domain.Mode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[mode]
	return ok
}

// Any reports whether at least one mode is loaded.
func (r *Registry) Any() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models) > 0
}

// Select returns the classifier for the requested mode, falling back to the
// first loaded mode in domain.KnownModes order. The returned mode is the one
// actually used.
func (r *Registry) Select(requested domain.Mode) (domain.Mode, Classifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if clf, ok := r.models[requested]; ok {
		return requested, clf, nil
	}
	for _, mode := range domain.KnownModes {
		if clf, ok := r.models[mode]; ok {
			return mode, clf, nil
		}
	}
	return "", nil, domain.ErrModelUnavailable
}
