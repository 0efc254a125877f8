// Package cache implements a TTL/LRU command-result cache and its
// companion caching middleware, with an optional Redis-backed store for
// sharing cached results across instances.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/pipelinekit/pipelinekit/events"
)

// Cache is the contract both the in-process and Redis-backed
// implementations satisfy.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, value any, ttl time.Duration)
	Invalidate(key string)
}

type entry struct {
	key      string
	value    any
	expireAt time.Time
	elem     *list.Element
}

// LRU is an in-process TTL/LRU cache: get touches recency, put evicts the
// least-recently-used entry when full. Grounded in statestore.MemoryStore's
// map+mutex pairing, generalized here with a container/list to track
// recency order the way statestore's userIndex tracks a secondary index.
type LRU struct {
	capacity int
	emitter  *events.Emitter

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front = most recently used
}

// NewLRU creates an LRU cache holding at most capacity entries.
func NewLRU(capacity int, emitter *events.Emitter) *LRU {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LRU{
		capacity: capacity,
		emitter:  emitter,
		entries:  make(map[string]*entry),
		order:    list.New(),
	}
}

// Get returns the value for key if present and not expired, touching its
// recency. Expired entries are evicted lazily on access.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.emitter.CacheMiss(key)
		return nil, false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		c.removeLocked(e, "expired")
		c.emitter.CacheMiss(key)
		return nil, false
	}

	c.order.MoveToFront(e.elem)
	c.emitter.CacheHit(key)
	return e.value, true
}

// Put stores value under key with the given ttl (0 means no expiration),
// evicting least-recently-used entries if the cache is at capacity.
func (c *LRU) Put(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing, "")
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry), "evicted")
	}

	var expireAt time.Time
	if ttl > 0 {
		expireAt = time.Now().Add(ttl)
	}
	e := &entry{key: key, value: value, expireAt: expireAt}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	c.emitter.CacheStored(key, ttl)
}

// Invalidate removes key if present; it is a no-op otherwise.
func (c *LRU) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e, "invalidated")
	}
}

// removeLocked deletes e from both the map and the recency list. Caller
// must hold c.mu. reason, if non-empty, emits cache.evicted.
func (c *LRU) removeLocked(e *entry, reason string) {
	delete(c.entries, e.key)
	c.order.Remove(e.elem)
	if reason != "" {
		c.emitter.CacheEvicted(e.key, reason)
	}
}
