package access

import (
	"sync"
	"time"
)

// DefaultTargetTTL is how long a fetched target snapshot stays reusable.
const DefaultTargetTTL = 30 * time.Second

type cacheKey struct {
	resource string
	id       string
}

type cacheEntry struct {
	record    map[string]any
	expiresAt time.Time
}

// TargetCache is the one piece of shared mutable state in the engine: a
// short-TTL map from (resource, id) to a previously fetched entity snapshot.
// Entries expire lazily on read. Two concurrent misses may both fetch the
// same entity; that is accepted, not deduplicated.
type TargetCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

// NewTargetCache creates a cache with the given TTL; ttl <= 0 uses
// DefaultTargetTTL.
func NewTargetCache(ttl time.Duration) *TargetCache {
	if ttl <= 0 {
		ttl = DefaultTargetTTL
	}
	return &TargetCache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached snapshot for (resource, id) if present and fresh.
func (c *TargetCache) Get(resource, id string) (map[string]any, bool) {
	key := cacheKey{resource: resource, id: id}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Recheck: another goroutine may have refreshed the entry.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.record, true
}

// Put stores a snapshot with the cache's TTL.
func (c *TargetCache) Put(resource, id string, record map[string]any) {
	key := cacheKey{resource: resource, id: id}
	c.mu.Lock()
	c.entries[key] = cacheEntry{record: record, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Len reports the number of entries, counting expired ones not yet swept.
func (c *TargetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
