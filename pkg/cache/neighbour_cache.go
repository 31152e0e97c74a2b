// Package cache memoises neighbourhood lookups across match runs.
//
// Many checks run against the same target graph. The forward checks of
// those runs repeat the same (edge, bound node, value) lookups, which a live
// store answers with a read transaction each. NeighbourCache keeps their
// results.
//
// Features:
// - LRU eviction for bounded memory
// - TTL expiration so a changing store is eventually observed
// - Thread-safe operations
// - Cache hit/miss statistics
//
// Usage:
//
//	nc := cache.NewNeighbourCache[storage.NodeID](10000, time.Minute)
//	access := cache.NewAccess(storage.NewAccess(engine, policy), nc)
//	eng, _ := match.New(holder, match.Strategies[storage.NodeID]{Access: access})
package cache

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// NeighbourCache is a thread-safe LRU cache of neighbour lists.
//
// The cache uses:
// - Hash map for O(1) lookups
// - Doubly-linked list for LRU ordering
// - TTL for automatic expiration
type NeighbourCache[N comparable] struct {
	mu sync.Mutex

	// Configuration
	maxSize int
	ttl     time.Duration
	enabled bool

	// LRU list (front = most recent)
	list  *list.List
	items map[string]*list.Element

	// Statistics
	hits   uint64
	misses uint64
}

type cacheEntry[N comparable] struct {
	key       string
	value     []N
	expiresAt time.Time
}

// NewNeighbourCache creates a cache holding at most maxSize neighbour lists.
// A zero ttl disables expiration.
func NewNeighbourCache[N comparable](maxSize int, ttl time.Duration) *NeighbourCache[N] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &NeighbourCache[N]{
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
		list:    list.New(),
		items:   make(map[string]*list.Element, maxSize),
	}
}

// Key identifies a lookup. The pattern edge contributes its value key, so
// equal edges from different patterns share entries; the bound node
// contributes only its role.
func Key[N comparable](e *pattern.Edge, bound *pattern.Node, value N) string {
	var b strings.Builder
	b.WriteString(e.Key())
	if bound == e.Source() {
		b.WriteString("\x00>")
	} else {
		b.WriteString("\x00<")
	}
	for _, a := range e.Other(bound).Requirements() {
		fmt.Fprintf(&b, "\x00%s=%s", a.Name, a.Value)
	}
	fmt.Fprintf(&b, "\x00%#v", value)
	return b.String()
}

// Get returns the cached neighbours for key.
func (c *NeighbourCache[N]) Get(key string) ([]N, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	elem, ok := c.items[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*cacheEntry[N])
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.list.MoveToFront(elem)
	atomic.AddUint64(&c.hits, 1)
	return entry.value, true
}

// Put stores neighbours under key. The slice must not be modified afterwards.
func (c *NeighbourCache[N]) Put(key string, value []N) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry[N])
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry[N]{key: key, value: value}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.items[key] = c.list.PushFront(entry)
}

// Clear removes all entries.
func (c *NeighbourCache[N]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Len returns the number of entries.
func (c *NeighbourCache[N]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// Stats returns cache statistics.
func (c *NeighbourCache[N]) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return Stats{
		Size:    c.Len(),
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// Stats holds cache statistics.
type Stats struct {
	Size    int     // Current number of entries
	MaxSize int     // Maximum capacity
	Hits    uint64  // Number of cache hits
	Misses  uint64  // Number of cache misses
	HitRate float64 // Hit rate percentage (0-100)
}

func (s Stats) String() string {
	return fmt.Sprintf("%d/%d entries, %d hits, %d misses (%.1f%%)", s.Size, s.MaxSize, s.Hits, s.Misses, s.HitRate)
}

// SetEnabled enables or disables the cache. Disabling clears it.
func (c *NeighbourCache[N]) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled

	if !enabled {
		c.list.Init()
		c.items = make(map[string]*list.Element, c.maxSize)
	}
}

// evictOldest removes the least recently used entry. Must hold lock.
func (c *NeighbourCache[N]) evictOldest() {
	if elem := c.list.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element from the cache. Must hold lock.
func (c *NeighbourCache[N]) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry[N]).key)
}
