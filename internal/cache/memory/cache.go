// Package memory implements an in-process estimate cache with a TTL and a
// bounded entry count.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

// Config controls expiry and capacity.
type Config struct {
	TTL        time.Duration
	MaxEntries int
}

type entry struct {
	estimate  estimate.Estimate
	expiresAt time.Time
}

// Cache stores estimates keyed by cert.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	entries    map[string]entry
}

// New builds a Cache. A non-positive TTL disables expiry and a non-positive
// MaxEntries disables the bound.
func New(cfg Config) *Cache {
	return &Cache{
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		entries:    make(map[string]entry),
	}
}

// Get returns the cached estimate for cert when present and fresh.
func (c *Cache) Get(_ context.Context, cert string) (estimate.Estimate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cert]
	if !ok {
		return estimate.Estimate{}, false, nil
	}
	if c.expired(e) {
		delete(c.entries, cert)
		return estimate.Estimate{}, false, nil
	}
	return e.estimate, true, nil
}

// Set stores est under cert, evicting expired entries and then the entry
// closest to expiry when the cache is full.
func (c *Cache) Set(_ context.Context, cert string, est estimate.Estimate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[cert]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evict()
	}
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	c.entries[cert] = entry{estimate: est, expiresAt: expiresAt}
	return nil
}

// Len reports the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ping always succeeds.
func (c *Cache) Ping(context.Context) error {
	return nil
}

func (c *Cache) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *Cache) evict() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
