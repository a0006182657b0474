// Package cache provides byte caches for explanation responses.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Stats are cumulative counters for one cache tier.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// LRUCache is a bounded in-process cache with per-entry expiry. Expired
// entries are dropped lazily when read.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front is most recently used

	hits, misses, evictions uint64

	now func() time.Time
}

type lruEntry struct {
	key      string
	value    []byte
	deadline time.Time // zero means no expiry
}

// NewLRUCache returns an empty cache holding at most capacity entries.
// A non-positive capacity defaults to 10000.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
}

// Get returns the live value for key, or nil on a miss.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, nil
	}
	e := elem.Value.(*lruEntry)
	if !e.deadline.IsZero() && !c.now().Before(e.deadline) {
		c.drop(elem)
		c.misses++
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	c.hits++
	return e.value, nil
}

// Set stores a copy of value and evicts the least recently used entries
// beyond capacity.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var deadline time.Time
	if ttl > 0 {
		deadline = c.now().Add(ttl)
	}
	stored := append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*lruEntry)
		e.value, e.deadline = stored, deadline
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[key] = c.recency.PushFront(&lruEntry{key: key, value: stored, deadline: deadline})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
		c.evictions++
	}
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.drop(elem)
	}
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error { return nil }

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency.Init()
	return nil
}

// Stats returns a snapshot of the counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.recency.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *LRUCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*lruEntry).key)
}
