// Package cache holds the short-TTL caches that shield the click resolution
// path from repeated storage reads. Staleness up to one TTL window is an
// accepted property of both caches, not a bug.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val     V
	expires time.Time
}

// TTL is a concurrency-safe in-memory cache with a fixed per-entry TTL.
// Writes are last-write-wins; with ttl <= 0 every Get is a miss, so
// correctness never depends on a hit.
type TTL[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]entry[V]
}

func NewTTL[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{ttl: ttl, items: make(map[string]entry[V])}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Set stores val under key for the cache's TTL.
func (c *TTL[V]) Set(key string, val V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = entry[V]{val: val, expires: time.Now().Add(c.ttl)}
	if len(c.items) > 0 && len(c.items)%1024 == 0 {
		c.purgeLocked()
	}
	c.mu.Unlock()
}

// Delete removes key immediately.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Flush drops every entry.
func (c *TTL[V]) Flush() {
	c.mu.Lock()
	c.items = make(map[string]entry[V])
	c.mu.Unlock()
}

func (c *TTL[V]) purgeLocked() {
	now := time.Now()
	for k, e := range c.items {
		if now.After(e.expires) {
			delete(c.items, k)
		}
	}
}
