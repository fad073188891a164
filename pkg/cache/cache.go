// Package cache provides a generic, thread-safe TTL cache.
// Used in front of the credential store so per-node credential lookups
// during graph execution do not hit the KV bucket on every step.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
)

// Cache is a generic key/value cache parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry
	// was created, false if an existing one was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Close shuts down the cache and releases background resources.
	Close() error
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *ttlEntry[V]) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// ttlCache is a thread-safe TTL cache with background expiry sweeps.
type ttlCache[V any] struct {
	mu              sync.RWMutex
	ttl             time.Duration
	cleanupInterval time.Duration
	items           map[string]*ttlEntry[V]

	shutdown chan struct{}
	done     chan struct{}
	closed   bool
}

// NewTTL creates a TTL cache. The background cleanup goroutine stops when
// ctx is cancelled or Close is called.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration) (Cache[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(nil, "cache", "NewTTL", "ttl must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	c := &ttlCache[V]{
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		items:           make(map[string]*ttlEntry[V]),
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if entry.isExpired() {
		// Lazy eviction; the sweeper will also catch it.
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if key == "" {
		return false, errors.WrapInvalid(nil, "cache", "Set", "key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.items[key]
	c.items[key] = &ttlEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	return !existed, nil
}

func (c *ttlCache[V]) Delete(key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.items[key]
	delete(c.items, key)
	return existed, nil
}

func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*ttlEntry[V])
	return nil
}

func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.shutdown)
	<-c.done
	return nil
}

func (c *ttlCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.items {
				if now.After(entry.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
