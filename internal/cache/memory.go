// Package cache provides the in-process cache used when no Redis is configured.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pharmaguard-server/internal/domain"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
	Cap    int    `json:"capacity"`
}

// MemoryCache is a size-bounded LRU of explanations with per-entry expiry.
// It is safe for concurrent use.
type MemoryCache struct {
	lru      *expirable.LRU[string, *domain.Explanation]
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewMemoryCache creates a cache holding at most maxItems entries for ttl each.
func NewMemoryCache(maxItems int, ttl time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxItems)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("cache ttl must not be negative, got %s", ttl)
	}
	return &MemoryCache{
		lru:      expirable.NewLRU[string, *domain.Explanation](maxItems, nil, ttl),
		capacity: maxItems,
	}, nil
}

// Get returns a copy of the cached explanation for key.
func (c *MemoryCache) Get(key string) (*domain.Explanation, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	cp := *v
	return &cp, true
}

// Set stores a copy of explanation under key.
func (c *MemoryCache) Set(key string, explanation *domain.Explanation) {
	if explanation == nil {
		return
	}
	cp := *explanation
	c.lru.Add(key, &cp)
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.lru.Remove(key)
}

// Purge empties the cache.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Stats returns hit/miss counters and occupancy.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
		Cap:    c.capacity,
	}
}
