package pipeline

import (
	"sync"

	"github.com/Yelmkhayar/hydro-sentinel/internal/domain"
	"github.com/Yelmkhayar/hydro-sentinel/internal/observability"
)

// CachedResolver wraps a LabelResolver with an in-memory LRU cache. The inner
// resolver must be a pure function of the label, so a hit always equals a
// fresh resolution.
type CachedResolver struct {
	inner   domain.LabelResolver
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a resolver. metrics may be nil.
func NewCachedResolver(inner domain.LabelResolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedResolver) Resolve(label string) domain.ColumnMapping {
	if m, ok := c.cache.get(label); ok {
		c.observe("hit")
		return copyMapping(m)
	}
	c.observe("miss")
	m := c.inner.Resolve(label)
	c.cache.put(label, m)
	return copyMapping(m)
}

func (c *CachedResolver) observe(result string) {
	if c.metrics != nil {
		c.metrics.ResolverCache.WithLabelValues(result).Inc()
	}
}

// copyMapping detaches the station code pointer from the cached entry.
func copyMapping(m domain.ColumnMapping) domain.ColumnMapping {
	if m.StationCode != nil {
		code := *m.StationCode
		m.StationCode = &code
	}
	return m
}

// lruCache is a simple thread-safe LRU cache of column mappings.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.ColumnMapping
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.ColumnMapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.ColumnMapping{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.ColumnMapping) {
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

func (c *lruCache) size() int {
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
