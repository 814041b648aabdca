// Package cache provides small in-process caches for hot-path lookups.
package cache

import (
	"sync"
	"time"

	"github.com/pantheonhq/pantheon/internal/clock"
)

// Cache is a minimal typed cache with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	clk     clock.Clock
}

// NewTTLCache returns an empty in-memory TTL cache on the system clock.
func NewTTLCache[K comparable, V any]() Cache[K, V] {
	return NewTTLCacheWithClock[K, V](clock.System{})
}

// NewTTLCacheWithClock is the injectable-clock constructor used by tests.
func NewTTLCacheWithClock[K comparable, V any](clk clock.Clock) Cache[K, V] {
	return &ttlCache[K, V]{entries: make(map[K]entry[V]), clk: clk}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !item.expiresAt.IsZero() && c.clk.Now().After(item.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return item.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	expiresAt := time.Time{}
	if ttl > 0 {
		expiresAt = c.clk.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
