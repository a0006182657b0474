package domain

import (
	"context"
	"time"
)

// Cache stores rendered explanations keyed by a request hash.
// A miss is reported as (nil, nil); errors are reserved for backend faults.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value for ttl. A non-positive ttl keeps the entry until it
	// is evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig configures the explanation cache.
type CacheConfig struct {
	// Type is "memory", "redis" or "none".
	Type string `koanf:"type"`

	// TTL applied to cached explanations.
	TTL time.Duration `koanf:"ttl"`

	// In-process LRU, used alone or as the first tier in front of Redis.
	LocalMaxSize int           `koanf:"local_max_size"`
	LocalTTL     time.Duration `koanf:"local_ttl"`

	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// EnableTwoPhase puts the LRU in front of Redis.
	EnableTwoPhase bool `koanf:"enable_two_phase"`
}
