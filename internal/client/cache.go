package client

import (
	"context"
	"sync"
	"time"
)

// Cache holds one value for a fixed TTL. Loads are serialized so concurrent
// readers of an expired entry trigger a single load.
type Cache[T any] struct {
	ttl      time.Duration
	timeFunc func() time.Time

	mu      sync.Mutex
	value   T
	expires time.Time
	valid   bool
}

// NewCache creates a cache whose entries live for ttl.
func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{ttl: ttl, timeFunc: time.Now}
}

// Get returns the cached value, calling load when the entry is missing or
// expired. A failed load leaves the cache empty.
func (c *Cache[T]) Get(ctx context.Context, load func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.timeFunc().Before(c.expires) {
		return c.value, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.value, c.valid = v, true
	c.expires = c.timeFunc().Add(c.ttl)
	return v, nil
}

// Invalidate drops the cached value.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value, c.valid = zero, false
}
