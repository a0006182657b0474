package explain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// CachedBackend memoizes a backend's explanations. GenerationFallback is
// passed through but never stored. Cache failures are logged and bypassed.
type CachedBackend struct {
	backend Backend
	cache   domain.Cache
	ttl     time.Duration
}

// NewCachedBackend wraps backend with cache.
func NewCachedBackend(backend Backend, cache domain.Cache, ttl time.Duration) *CachedBackend {
	return &CachedBackend{backend: backend, cache: cache, ttl: ttl}
}

// Explain returns a cached explanation or computes and stores one.
func (b *CachedBackend) Explain(ctx context.Context, req domain.ExplanationRequest) (string, error) {
	key := CacheKey(req)

	if data, err := b.cache.Get(ctx, key); err != nil {
		slog.Warn("explanation cache read failed", "error", err)
	} else if data != nil {
		return string(data), nil
	}

	text, err := b.backend.Explain(ctx, req)
	if err != nil {
		return "", err
	}
	if text == GenerationFallback {
		return text, nil
	}

	if err := b.cache.Set(ctx, key, []byte(text), b.ttl); err != nil {
		slog.Warn("explanation cache write failed", "error", err)
	}
	return text, nil
}

// CacheKey hashes the request after resolving its language.
func CacheKey(req domain.ExplanationRequest) string {
	req.Language = domain.NormalizeLanguage(string(req.Language))
	data, _ := json.Marshal(req)
	sum := sha256.Sum256(data)
	return "explain:" + hex.EncodeToString(sum[:])
}
