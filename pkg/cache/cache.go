package cache

import (
	"context"
	"sync"
	"time"
)

// Reader defines the read-only operations for a cache.
type Reader[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
}

// Writer defines the write-only operations for a cache.
type Writer[K comparable, V any] interface {
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	SetUntil(ctx context.Context, key K, value V, expiresAt time.Time)
	Delete(ctx context.Context, key K)
}

// Store combines read, write and maintenance operations.
type Store[K comparable, V any] interface {
	Reader[K, V]
	Writer[K, V]
	Count() int
	Clear(ctx context.Context)
}

const (
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute

	// NoExpiration keeps an item until it is deleted.
	NoExpiration time.Duration = -1
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (i item[V]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// Cache is a thread-safe generic cache whose entries expire at an absolute
// instant. Expired entries are invisible to Get and removed by a background
// sweep when a cleanup interval is configured.
type Cache[K comparable, V any] struct {
	mu              sync.RWMutex
	items           map[K]item[V]
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	onEvicted       func(K, V)
	stopOnce        sync.Once
	stopCleanup     chan struct{}
}

type Option[K comparable, V any] func(*Cache[K, V])

// New creates a cache. The sweep goroutine only runs when the cleanup
// interval is positive; call Stop to end it.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		items:           make(map[K]item[V]),
		defaultTTL:      DefaultTTL,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

func WithDefaultTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.defaultTTL = ttl }
}

// WithCleanupInterval sets the sweep period; zero or negative disables the sweep.
func WithCleanupInterval[K comparable, V any](interval time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.cleanupInterval = interval }
}

func WithEvictionCallback[K comparable, V any](onEvicted func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvicted = onEvicted }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) { c.now = now }
}

// Set stores value for ttl. Zero uses the default TTL, NoExpiration never expires.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	switch {
	case ttl == NoExpiration:
	case ttl == 0:
		expiresAt = c.now().Add(c.defaultTTL)
	default:
		expiresAt = c.now().Add(ttl)
	}
	c.SetUntil(ctx, key, value, expiresAt)
}

// SetUntil stores value until expiresAt. A zero expiresAt never expires.
func (c *Cache[K, V]) SetUntil(ctx context.Context, key K, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: expiresAt}
}

func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, found := c.items[key]
	if !found || cached.expired(c.now()) {
		var zero V
		return zero, false
	}
	return cached.value, true
}

func (c *Cache[K, V]) Delete(ctx context.Context, key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delete(key)
}

func (c *Cache[K, V]) delete(key K) {
	if cached, found := c.items[key]; found {
		delete(c.items, key)
		if c.onEvicted != nil {
			c.onEvicted(key, cached.value)
		}
	}
}

// Count includes expired entries the sweep has not removed yet.
func (c *Cache[K, V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[K, V]) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]item[V])
}

// DeleteExpired removes every expired entry now.
func (c *Cache[K, V]) DeleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, cached := range c.items {
		if cached.expired(now) {
			c.delete(key)
		}
	}
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (c *Cache[K, V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

func (c *Cache[K, V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}
