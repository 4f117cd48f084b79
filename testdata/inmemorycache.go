package testdata

import (
	"sync"
	"time"
)

// InMemoryListCache is a ListCache held in process memory
type InMemoryListCache struct {
	items    []*TestData
	cachedAt time.Time
	config   CacheConfig
	valid    bool
	gen      uint64
	now      func() time.Time
	mu       sync.RWMutex
}

// NewInMemoryListCache creates an empty cache
func NewInMemoryListCache(config CacheConfig) *InMemoryListCache {
	return &InMemoryListCache{
		config: config,
		now:    time.Now,
	}
}

func (c *InMemoryListCache) Get() []*TestData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	out := make([]*TestData, len(c.items))
	copy(out, c.items)
	return out
}

func (c *InMemoryListCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

func (c *InMemoryListCache) Set(items []*TestData, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.gen {
		return false
	}
	c.items = make([]*TestData, len(items))
	copy(c.items, items)
	c.cachedAt = c.now()
	c.valid = true
	return true
}

func (c *InMemoryListCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.items = nil
	c.gen++
}

func (c *InMemoryListCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh()
}

// fresh must be called with mu held
func (c *InMemoryListCache) fresh() bool {
	if !c.valid {
		return false
	}
	if c.config.TTL > 0 && c.now().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
