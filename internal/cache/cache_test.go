package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil || val != nil {
			t.Errorf("expected clean miss, got %q (%v)", val, err)
		}
	})

	t.Run("StoresCopy", func(t *testing.T) {
		buf := []byte("original")
		_ = cache.Set(ctx, "copy", buf, time.Minute)
		copy(buf, "mutated!")

		val, _ := cache.Get(ctx, "copy")
		if string(val) != "original" {
			t.Errorf("cached value changed with caller buffer: %q", val)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "key1", []byte("value1b"), time.Minute)
		val, _ := cache.Get(ctx, "key1")
		if string(val) != "value1b" {
			t.Errorf("expected overwritten value, got '%s'", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		s := cache.Stats()
		if s.Capacity != 100 {
			t.Errorf("expected capacity 100, got %d", s.Capacity)
		}
		if s.Hits == 0 || s.Misses == 0 {
			t.Errorf("expected hits and misses to be counted, got %+v", s)
		}
	})
}

func TestLRUExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewLRUCache(10)
	cache.now = func() time.Time { return now }

	_ = cache.Set(ctx, "short", []byte("x"), time.Minute)
	_ = cache.Set(ctx, "forever", []byte("y"), 0)

	now = now.Add(59 * time.Second)
	if val, _ := cache.Get(ctx, "short"); val == nil {
		t.Error("expected value before deadline")
	}

	now = now.Add(time.Second)
	if val, _ := cache.Get(ctx, "short"); val != nil {
		t.Error("expected miss at deadline")
	}
	if size := cache.Stats().Size; size != 1 {
		t.Errorf("expired entry not dropped, size %d", size)
	}

	now = now.Add(24 * time.Hour)
	if val, _ := cache.Get(ctx, "forever"); string(val) != "y" {
		t.Errorf("entry without ttl expired: %q", val)
	}
}

func TestLRUEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_ = cache.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	// touch k1 so k2 becomes the oldest
	_, _ = cache.Get(ctx, "k1")
	_ = cache.Set(ctx, "k4", []byte("v"), time.Minute)

	if val, _ := cache.Get(ctx, "k2"); val != nil {
		t.Error("expected k2 to be evicted")
	}
	for _, k := range []string{"k1", "k3", "k4"} {
		if val, _ := cache.Get(ctx, k); val == nil {
			t.Errorf("expected %s to remain", k)
		}
	}
	s := cache.Stats()
	if s.Size != 3 || s.Evictions != 1 {
		t.Errorf("expected size 3 and 1 eviction, got %+v", s)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisCache(domain.CacheConfig{RedisAddr: mr.Addr(), RedisKeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer cache.Close()

	if err := cache.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, _ := mr.Get("test:k"); got != "v" {
		t.Errorf("expected prefixed key, got %q", got)
	}
	if ttl := mr.TTL("test:k"); ttl != time.Hour {
		t.Errorf("expected ttl 1h, got %v", ttl)
	}

	if val, _ := cache.Get(ctx, "k"); string(val) != "v" {
		t.Errorf("expected hit, got %q", val)
	}
	if val, err := cache.Get(ctx, "missing"); val != nil || err != nil {
		t.Errorf("expected clean miss, got %q (%v)", val, err)
	}
	if s := cache.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("unexpected stats %+v", s)
	}

	_ = cache.Set(ctx, "noexpiry", []byte("v"), 0)
	if ttl := mr.TTL("test:noexpiry"); ttl != 0 {
		t.Errorf("expected no ttl, got %v", ttl)
	}
}

func TestRedisCacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisCache(domain.CacheConfig{RedisAddr: addr}); err == nil {
		t.Error("expected connection error")
	}
}

func TestTieredCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := New(domain.CacheConfig{
		Type:           "redis",
		EnableTwoPhase: true,
		RedisAddr:      mr.Addr(),
		LocalMaxSize:   10,
		LocalTTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cache, ok := c.(*TieredCache)
	if !ok {
		t.Fatalf("expected *TieredCache, got %T", c)
	}
	defer cache.Close()

	t.Run("WritesBothTiers", func(t *testing.T) {
		if err := cache.Set(ctx, "a", []byte("1"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := mr.Get(DefaultKeyPrefix + "a")
		if err != nil || got != "1" {
			t.Errorf("expected Redis to hold value, got %q (%v)", got, err)
		}
		if ttl := mr.TTL(DefaultKeyPrefix + "a"); ttl != time.Hour {
			t.Errorf("expected Redis ttl 1h, got %v", ttl)
		}
		if val, _ := cache.local.Get(ctx, "a"); string(val) != "1" {
			t.Errorf("expected LRU to hold value, got %q", val)
		}
	})

	t.Run("RedisHitPromotes", func(t *testing.T) {
		if err := mr.Set(DefaultKeyPrefix+"b", "2"); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		val, err := cache.Get(ctx, "b")
		if err != nil || string(val) != "2" {
			t.Fatalf("expected Redis hit, got %q (%v)", val, err)
		}

		mr.Del(DefaultKeyPrefix + "b")
		if val, _ := cache.Get(ctx, "b"); string(val) != "2" {
			t.Errorf("expected LRU to serve value after Redis delete, got %q", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Delete(ctx, "a")
		if val, _ := cache.Get(ctx, "a"); val != nil {
			t.Error("expected nil after delete")
		}
		if mr.Exists(DefaultKeyPrefix + "a") {
			t.Error("expected Redis key removed")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("RedisDownIsMiss", func(t *testing.T) {
		mr.SetError("LOADING")
		defer mr.SetError("")

		val, err := cache.Get(ctx, "never-set")
		if err != nil || val != nil {
			t.Errorf("expected miss without error, got %q (%v)", val, err)
		}
		if err := cache.Set(ctx, "c", []byte("3"), time.Hour); err == nil {
			t.Error("expected write error while Redis fails")
		}
		if val, _ := cache.local.Get(ctx, "c"); val != nil {
			t.Error("LRU must not hold a value Redis rejected")
		}
	})
}

func TestNew(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "none"})
	if err != nil || c != nil {
		t.Errorf("expected nil cache for none, got %v (%v)", c, err)
	}

	c, err = New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}

	mr := miniredis.RunT(t)
	c, err = New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()
	if _, ok := c.(*RedisCache); !ok {
		t.Errorf("expected *RedisCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	lru := NewLRUCache(10)
	read := Counters(lru)
	if read == nil {
		t.Fatal("expected counters for the LRU cache")
	}

	lru.Set(ctx, "k", []byte("v"), 0)
	lru.Get(ctx, "k")
	lru.Get(ctx, "missing")

	if hits, misses := read(); hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d and %d", hits, misses)
	}
	if Counters(nil) != nil {
		t.Error("expected no counters for a nil cache")
	}
}
