package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds an InMemoryCache built with a non-positive size.
const DefaultMaxEntries = 10000

// sweepInterval is the minimum gap between expired-entry sweeps.
const sweepInterval = time.Minute

// Cache stores resolved place names keyed by rounded coordinates.
// Get returns the cached name if present and not expired, Set stores it with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// InMemoryCache implements Cache on a size-bounded LRU with per-entry TTL.
// The least recently used entry is evicted at capacity, and expired entries
// are swept from Set at most once per sweepInterval. Safe for concurrent use.
type InMemoryCache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, cacheEntry]
	now       func() time.Time
	lastSweep time.Time
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewInMemoryCache creates a cache holding at most maxEntries names.
func NewInMemoryCache(maxEntries int) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, cacheEntry](maxEntries)
	return &InMemoryCache{
		entries: entries,
		now:     time.Now,
	}
}

// Get returns (name, true, nil) on hit and ("", false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return "", false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores value until ttl elapses.
func (c *InMemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= sweepInterval {
		c.sweep(now)
	}
	c.entries.Add(key, cacheEntry{
		value:     value,
		expiresAt: now.Add(ttl),
	})
	return nil
}

func (c *InMemoryCache) sweep(now time.Time) {
	c.lastSweep = now
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && now.After(e.expiresAt) {
			c.entries.Remove(k)
		}
	}
}

// Len reports the number of stored entries, expired ones not yet swept included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
