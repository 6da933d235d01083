package arcgis

import (
	"context"
	"sync"

	"github.com/knifflig/ChargeApp/internal/observability"
)

// CachedQuerier wraps a Querier with an in-memory LRU cache of feature queries.
type CachedQuerier struct {
	inner   Querier
	source  string
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedQuerier creates a cache decorator around a querier.
func NewCachedQuerier(inner Querier, source string, maxEntries int, metrics *observability.Metrics) *CachedQuerier {
	return &CachedQuerier{
		inner:   inner,
		source:  source,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedQuerier) Query(ctx context.Context, q Query) ([]Feature, error) {
	key := q.Values().Encode()
	if features, ok := c.cache.get(key); ok {
		c.metrics.APICache.WithLabelValues(c.source, "lru", "hit").Inc()
		return features, nil
	}
	c.metrics.APICache.WithLabelValues(c.source, "lru", "miss").Inc()

	features, err := c.inner.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so a transiently empty layer is asked again.
	if len(features) > 0 {
		c.cache.put(key, features)
	}
	return features, nil
}

// ObjectIDs is not cached; id listings are small and should reflect the live layer.
func (c *CachedQuerier) ObjectIDs(ctx context.Context, q Query) ([]int64, error) {
	return c.inner.ObjectIDs(ctx, q)
}

// lruCache is a simple thread-safe LRU cache of feature query results.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []Feature
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]Feature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
