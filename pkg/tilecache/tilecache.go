// Package tilecache provides the bounded, shared-ownership tile cache:
// an LRU keyed by (tile source id, tile coordinate), capped by both tile
// count and total byte footprint, that never evicts a pinned tile.
package tilecache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/NERVsystems/vectorscene/pkg/monitoring"
	"github.com/NERVsystems/vectorscene/pkg/tilemath"
)

// Key identifies a cached tile.
type Key struct {
	SourceID string
	ID       tilemath.ID
}

// Tile is the minimal contract a cached value must satisfy so the cache
// can enforce its byte budget.
type Tile interface {
	MemoryUsage() int
}

type entry[T Tile] struct {
	value    T
	pinCount int
}

// Cache is a generic, concurrency-safe LRU of tiles, capped by both
// maxTiles and maxBytes. Pinned entries (pinCount > 0) are never evicted
// by Put's capacity enforcement, and survive Clear(false).
type Cache[T Tile] struct {
	mu       sync.Mutex
	maxTiles int
	maxBytes int64
	curBytes int64
	cacheTyp string
	index    *lru.Cache[Key, *entry[T]]
}

// New builds a Cache capped at maxTiles entries and maxBytes of combined
// Tile.MemoryUsage(). cacheType labels the cache for metrics (e.g. "tile").
func New[T Tile](cacheType string, maxTiles int, maxBytes int64) *Cache[T] {
	c := &Cache[T]{
		maxTiles: maxTiles,
		maxBytes: maxBytes,
		cacheTyp: cacheType,
	}
	// The underlying Cache's own size cap is set effectively unbounded:
	// its automatic eviction knows nothing about pinning, so letting it
	// evict would break the "never evict a pinned tile" guarantee. All
	// capacity enforcement instead happens in enforceCaps, which skips
	// pinned entries. onEvicted only fires from calls we make ourselves
	// (Remove/Purge), so it is safe to adjust curBytes here.
	idx, err := lru.NewWithEvict[Key, *entry[T]](unboundedIndexSize, func(k Key, e *entry[T]) {
		c.curBytes -= int64(e.value.MemoryUsage())
		monitoring.RecordCacheEviction(cacheType)
	})
	if err != nil {
		// unboundedIndexSize is a positive constant, so this cannot fail.
		panic(err)
	}
	c.index = idx
	return c
}

// unboundedIndexSize is the underlying recency index's own capacity,
// kept far above any realistic cache size so its built-in eviction never
// fires; Cache enforces maxTiles/maxBytes itself, with pin awareness.
const unboundedIndexSize = 1 << 30

// Get looks up k, promoting it to most-recently-used on a hit.
func (c *Cache[T]) Get(k Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index.Get(k)
	if !ok {
		var zero T
		monitoring.RecordCacheMiss(c.cacheTyp)
		return zero, false
	}
	monitoring.RecordCacheHit(c.cacheTyp)
	return e.value, true
}

// Put inserts or replaces the tile at k, then evicts least-recently-used,
// unpinned entries until both the tile-count and byte caps hold. The
// incoming tile is itself eligible: if the caps still do not hold once
// every older unpinned entry is gone (all others are pinned, or the tile
// alone exceeds maxBytes), it is evicted too.
func (c *Cache[T]) Put(k Key, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.index.Peek(k); ok {
		c.curBytes -= int64(old.value.MemoryUsage())
	}
	c.index.Add(k, &entry[T]{value: v})
	c.curBytes += int64(v.MemoryUsage())

	c.enforceCaps()
	c.reportStats()
}

// enforceCaps evicts unpinned entries, oldest first, until both caps
// hold or no unpinned entry remains. Must be called with c.mu held.
func (c *Cache[T]) enforceCaps() {
	for c.overCap() {
		evicted := false
		for _, key := range c.index.Keys() {
			e, ok := c.index.Peek(key)
			if !ok || e.pinCount > 0 {
				continue
			}
			c.index.Remove(key) // fires onEvict, which adjusts curBytes
			evicted = true
			break
		}
		if !evicted {
			return // every remaining entry is pinned
		}
	}
}

func (c *Cache[T]) overCap() bool {
	if c.maxTiles > 0 && c.index.Len() > c.maxTiles {
		return true
	}
	if c.maxBytes > 0 && c.curBytes > c.maxBytes {
		return true
	}
	return false
}

// Pin marks k as held by an outside owner, making it ineligible for
// Put's capacity eviction and for Clear(false). Pin is a no-op if k is
// not present. Pins nest: each Pin must be matched by an Unpin.
func (c *Cache[T]) Pin(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index.Peek(k); ok {
		e.pinCount++
	}
}

// Unpin releases one outside hold on k taken by Pin. Once the pin count
// reaches zero, k is eligible for eviction again.
func (c *Cache[T]) Unpin(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index.Peek(k); ok && e.pinCount > 0 {
		e.pinCount--
	}
}

// Clear empties the cache. If dropPinned is false, pinned entries are
// kept and everything else is released; if true, every entry is dropped
// regardless of pin state.
func (c *Cache[T]) Clear(dropPinned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dropPinned {
		c.index.Purge()
		c.curBytes = 0
		c.reportStats()
		return
	}

	for _, key := range c.index.Keys() {
		e, ok := c.index.Peek(key)
		if !ok || e.pinCount > 0 {
			continue
		}
		c.index.Remove(key)
	}
	c.reportStats()
}

// ClearSource releases every entry belonging to sourceID. If dropPinned is
// false, pinned entries for that source are kept; everything else for
// that source is released. Used by a tile source to drop its own
// bookkeeping without disturbing other sources sharing the cache.
func (c *Cache[T]) ClearSource(sourceID string, dropPinned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.index.Keys() {
		if key.SourceID != sourceID {
			continue
		}
		e, ok := c.index.Peek(key)
		if !ok {
			continue
		}
		if !dropPinned && e.pinCount > 0 {
			continue
		}
		c.index.Remove(key)
	}
	c.reportStats()
}

// Len reports the current number of entries, pinned or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

// Bytes reports the current combined MemoryUsage of all entries.
func (c *Cache[T]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// reportStats pushes current size/entry/pin counts to monitoring. Must be
// called with c.mu held.
func (c *Cache[T]) reportStats() {
	pinned := 0
	for _, key := range c.index.Keys() {
		if e, ok := c.index.Peek(key); ok && e.pinCount > 0 {
			pinned++
		}
	}
	monitoring.UpdateCacheStats(c.cacheTyp, c.curBytes, c.index.Len(), pinned)
}
