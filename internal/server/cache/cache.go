// Package cache provides a typed TTL store on top of patrickmn/go-cache.
// The server keeps per-topic replay rings and recently closed sessions in it,
// so idle entries expire without a dedicated sweeper.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed wrapper around go-cache. It is safe for concurrent use.
type Cache[V any] struct {
	store *gocache.Cache
}

// New creates a new cache with the given TTL and cleanup interval.
// defaultTTL is the default expiration time for entries.
// cleanupInterval is how often expired items are removed from memory.
func New[V any](defaultTTL, cleanupInterval time.Duration) *Cache[V] {
	return &Cache[V]{store: gocache.New(defaultTTL, cleanupInterval)}
}

// Get retrieves a value.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores a value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// Add stores value only if key is absent or expired. It returns the value now
// held under key and whether it was added.
func (c *Cache[V]) Add(key string, value V) (V, bool) {
	if err := c.store.Add(key, value, gocache.DefaultExpiration); err == nil {
		return value, true
	}
	if cur, ok := c.Get(key); ok {
		return cur, false
	}
	c.Set(key, value)
	return value, true
}

// Touch resets the expiry of an existing key.
func (c *Cache[V]) Touch(key string) bool {
	v, ok := c.Get(key)
	if !ok {
		return false
	}
	c.Set(key, v)
	return true
}

// ItemCount returns the number of items, including expired ones not yet swept.
func (c *Cache[V]) ItemCount() int {
	return c.store.ItemCount()
}

// Keys returns the keys of unexpired items.
func (c *Cache[V]) Keys() []string {
	items := c.store.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

// OnEvicted registers a callback run when an item expires. It runs on the
// janitor goroutine outside the cache lock.
func (c *Cache[V]) OnEvicted(fn func(key string, value V)) {
	c.store.OnEvicted(func(k string, v any) {
		if typed, ok := v.(V); ok {
			fn(k, typed)
		}
	})
}
