// Package cache provides a small in-memory key-value cache with per-entry
// TTLs and a deliberate stale-read escape hatch: when the upstream rates
// provider is unreachable the conversion service prefers an expired entry
// over failing the request outright.
package cache

import (
	"sync"
	"time"
)

const defaultTTL = time.Hour

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a flat key-value cache with per-entry expiry.
// The zero value is not usable; construct with New.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	defaultTTL time.Duration

	now func() time.Time
}

// New creates a cache with the given default TTL. A non-positive ttl
// falls back to one hour.
func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: ttl,
		now:        time.Now,
	}
}

// Get returns the value for key. An expired entry behaves as a miss and is
// evicted as a side effect.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetStale returns the value for key regardless of expiry. Used only as the
// last-resort fallback after upstream retries are exhausted.
func (c *Cache[V]) GetStale(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with expiry now+ttl. A non-positive ttl uses
// the cache default.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
}

// CleanupExpired removes expired entries and returns the number removed.
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
