package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// CacheItem represents a cached item with expiration
type CacheItem[V any] struct {
	Value     V
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the cache item has expired
func (item *CacheItem[V]) IsExpired() bool {
	return time.Now().After(item.ExpiresAt)
}

// Cache is a thread-safe in-memory cache with TTL support
type Cache[V any] struct {
	items           map[string]*CacheItem[V]
	mu              sync.RWMutex
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewCache creates a new cache with default TTL and starts a cleanup
// goroutine that runs until Stop.
func NewCache[V any](defaultTTL time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:           make(map[string]*CacheItem[V]),
		defaultTTL:      defaultTTL,
		cleanupInterval: defaultTTL / 2,
		stopCleanup:     make(chan struct{}),
	}
	if c.cleanupInterval <= 0 {
		c.cleanupInterval = time.Second
	}

	go c.cleanup()

	return c
}

// Get retrieves a value from cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	item, exists := c.items[key]
	if !exists || item.IsExpired() {
		// Expired items are left for cleanup.
		return zero, false
	}
	return item.Value, true
}

// Set stores a value in cache with default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.items[key] = &CacheItem[V]{
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// Delete removes a key from cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Invalidate removes keys with the given prefix, or every expired item
// when pattern is empty.
func (c *Cache[V]) Invalidate(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if pattern == "" {
			if item.IsExpired() {
				delete(c.items, key)
			}
			continue
		}
		if strings.HasPrefix(key, pattern) {
			delete(c.items, key)
		}
	}
}

func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Invalidate("")
		case <-c.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// Size returns the number of items in cache, expired ones included.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrSet retrieves key from the cache or calls fallback and caches its
// result. Errors are not cached.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, fallback func(context.Context) (V, error)) (V, error) {
	if value, found := c.Get(key); found {
		return value, nil
	}

	value, err := fallback(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, value)
	return value, nil
}
