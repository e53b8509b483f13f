package assets

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxModels   = 64
	ModelTTL           = 30 * time.Minute
	MaxConcurrentLoads = 3
)

// Cache keeps loaded prototypes with LRU eviction and hands out deep copies,
// so the same asset can back many avatars without cross-instance interference.
type Cache struct {
	loader Loader

	mu      sync.RWMutex
	models  map[string]*cachedModel
	order   []string // LRU order (oldest first)
	maxSize int

	group singleflight.Group
	sem   chan struct{} // bounds concurrent loads
	now   func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cachedModel struct {
	model    *Model
	loadedAt time.Time
}

// NewCache wraps loader with a prototype cache.
func NewCache(loader Loader, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxModels
	}
	return &Cache{
		loader:  loader,
		models:  make(map[string]*cachedModel),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		sem:     make(chan struct{}, MaxConcurrentLoads),
		now:     time.Now,
	}
}

// Load returns an independent copy of the model for id, loading it on a miss.
// Concurrent misses for the same id share one underlying load.
func (c *Cache) Load(ctx context.Context, id string) (*Model, error) {
	if m := c.get(id); m != nil {
		c.hits.Add(1)
		return m.Clone(), nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-c.sem }()

		m, err := c.loader.Load(ctx, id)
		if err != nil {
			log.Printf("⚠️ Model load failed for %s: %v", id, err)
			return nil, err
		}
		c.store(id, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model).Clone(), nil
}

func (c *Cache) get(id string) *Model {
	c.mu.RLock()
	cached, ok := c.models[id]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	if c.now().Sub(cached.loadedAt) > ModelTTL {
		c.mu.Lock()
		delete(c.models, id)
		c.removeFromOrder(id)
		c.mu.Unlock()
		return nil
	}
	return cached.model
}

func (c *Cache) store(id string, m *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.models[id]; exists {
		c.removeFromOrder(id)
	} else if len(c.models) >= c.maxSize {
		c.evict()
	}

	c.models[id] = &cachedModel{model: m, loadedAt: c.now()}
	c.order = append(c.order, id)
}

// evict removes the oldest cached model
func (c *Cache) evict() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.models, oldest)
}

func (c *Cache) removeFromOrder(id string) {
	for i, x := range c.order {
		if x == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Size returns the number of cached prototypes.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// CacheStats is a point-in-time view of a Cache.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// Stats returns hit/miss counters and the number of cached prototypes.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.Size(),
	}
}
