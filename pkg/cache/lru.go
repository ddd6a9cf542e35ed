// Package cache provides an in-memory LRU cache with TTL for the read
// endpoints of the edition API. Every committed registry mutation clears
// the cache, so a replica never serves its own stale state.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is a cached response.
type Entry struct {
	Body        []byte
	ContentType string
}

type item struct {
	key       string
	entry     Entry
	expiresAt time.Time
}

// LRUCache is a thread-safe cache with TTL and least-recently-used
// eviction. Expired entries are dropped lazily on Get.
type LRUCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	// gen counts InvalidateAll calls.
	gen uint64
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &LRUCache{
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry for key and marks it recently used.
func (c *LRUCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	it := el.Value.(*item)
	if c.now().After(it.expiresAt) {
		c.removeElement(el)
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	return it.entry, true
}

// Set stores an entry, evicting the least recently used one when full.
func (c *LRUCache) Set(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, e)
}

// Generation returns the current invalidation generation.
func (c *LRUCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfGeneration stores an entry only if InvalidateAll has not run since
// gen was read. A response computed before an invalidation is dropped.
func (c *LRUCache) SetIfGeneration(key string, e Entry, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.set(key, e)
	return true
}

// Must be called with c.mu held.
func (c *LRUCache) set(key string, e Entry) {
	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item)
		it.entry = e
		it.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&item{key: key, entry: e, expiresAt: expires})
}

// Invalidate removes a key.
func (c *LRUCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// InvalidateAll removes every entry.
func (c *LRUCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.maxSize)
	c.order.Init()
	c.gen++
}

// Size returns the number of entries, including expired ones not yet
// dropped.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Must be called with c.mu held.
func (c *LRUCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*item).key)
}
