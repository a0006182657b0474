package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// New builds the cache named by cfg.Type. "none" (or empty) returns nil.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		remote, err := NewRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return remote, nil
		}
		return NewTieredCache(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Counters returns a reader for the hit and miss totals of c, or nil when c
// does not keep any.
func Counters(c domain.Cache) func() (hits, misses int64) {
	sc, ok := c.(interface{ Stats() Stats })
	if !ok {
		return nil
	}
	return func() (int64, int64) {
		st := sc.Stats()
		return int64(st.Hits), int64(st.Misses)
	}
}

// TieredCache serves reads from a local LRU and falls through to Redis.
// Redis faults on read are logged and treated as misses so an unhealthy
// Redis only costs a re-render.
type TieredCache struct {
	local    *LRUCache
	remote   *RedisCache
	localTTL time.Duration
}

// NewTieredCache puts local in front of remote. Entries copied into local
// live for at most localTTL (default 5m).
func NewTieredCache(local *LRUCache, remote *RedisCache, localTTL time.Duration) *TieredCache {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &TieredCache{local: local, remote: remote, localTTL: localTTL}
}

// Get checks the LRU, then Redis, promoting Redis hits into the LRU.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, _ := c.local.Get(ctx, key); val != nil {
		return val, nil
	}

	val, err := c.remote.Get(ctx, key)
	if err != nil {
		slog.Warn("redis cache read failed; treating as miss", "error", err)
		return nil, nil
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.localTTL)
	}
	return val, nil
}

// Set writes Redis first so the LRU never holds a value other replicas
// cannot see. The LRU keeps it for min(ttl, localTTL).
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	localTTL := c.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	return c.local.Set(ctx, key, value, localTTL)
}

// Delete removes key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	return c.remote.Delete(ctx, key)
}

// Ping reports Redis health; the LRU cannot fail.
func (c *TieredCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis tier: %w", err)
	}
	return nil
}

// Close empties the LRU and closes Redis.
func (c *TieredCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns the LRU counters.
func (c *TieredCache) Stats() Stats {
	return c.local.Stats()
}
