// Package cache provides an in-memory TTL cache used by the store to avoid
// re-reading hot rows (owner note lists) on every request.
package cache

import (
	"sync"
	"time"
)

// Config configures a Cache.
type Config struct {
	// DefaultTTL is applied when Set is called with ttl <= 0.
	DefaultTTL time.Duration

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration

	// MaxItems bounds the cache size; 0 means unbounded. When the bound is
	// reached, the entry closest to expiry is evicted.
	MaxItems int

	// OnEviction, if set, is called for entries removed by sweep or overflow.
	OnEviction func(key string, value any)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a TTL cache safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]entry
	config  Config
	ticker  *time.Ticker
	stopCh  chan struct{}
	stopped bool
}

// New creates a cache and starts its background sweeper.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	c := &Cache{
		items:  make(map[string]entry),
		config: config,
		ticker: time.NewTicker(config.CleanupInterval),
		stopCh: make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. A ttl <= 0 uses the default TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.MaxItems > 0 && len(c.items) >= c.config.MaxItems {
		if _, exists := c.items[key]; !exists {
			c.evictSoonestLocked()
		}
	}
	c.items[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Size returns the number of entries, expired included until the next sweep.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.ticker.Stop()
	close(c.stopCh)
}

func (c *Cache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.items {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = k
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		e := c.items[victim]
		delete(c.items, victim)
		if c.config.OnEviction != nil {
			c.config.OnEviction(victim, e.value)
		}
	}
}

func (c *Cache) sweep() {
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.items {
				if now.After(e.expiresAt) {
					delete(c.items, k)
					if c.config.OnEviction != nil {
						c.config.OnEviction(k, e.value)
					}
				}
			}
			c.mu.Unlock()
		}
	}
}
