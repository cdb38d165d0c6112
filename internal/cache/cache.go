// Package cache implements the Image Cache (C2): a concurrent LRU map from
// content-key to decoded image, shared by reference across every
// Wallpaper and the Async Loader.
//
// The engine is github.com/dgraph-io/ristretto/v2, the same cache the
// teacher wires for its own hot-path lookups. Ristretto's admission
// policy (TinyLFU) is probabilistic, so it alone can't promise the "both
// bounds hold after every insertion" invariant spec.md's testable
// property 1 demands; Cache layers a small mutex-guarded recency list on
// top that deterministically evicts least-recently-used entries whenever
// either the entry-count or the byte-cost bound is exceeded. Ristretto,
// configured with the same byte bound as its MaxCost, still runs its own
// admission and cost-based eviction underneath.
package cache

import (
	"container/list"
	"image"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// Key identifies one cache entry: a canonical absolute path plus the
// modification time observed at decode, so a file edited in place
// invalidates automatically.
type Key struct {
	Path    string
	ModTime time.Time
}

// Entry is the immutable, shared value handed out by the cache. Cost is
// the approximate byte size (height * stride) spec.md's data model
// specifies for the capacity bound.
type Entry struct {
	Image *image.RGBA
	Cost  int64
}

// Stats mirrors spec.md 4.2's required "stats" surface.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Count     int
	Bytes     int64
}

// Cache is the shared, size-bounded Image Cache.
type Cache struct {
	engine *ristretto.Cache[Key, *Entry]
	group  singleflight.Group

	mu         sync.Mutex
	recency    *list.List               // front = most recently used
	elements   map[Key]*list.Element    // Key -> its node in recency
	bytesTotal int64

	maxEntries int64
	maxBytes   int64

	hits      atomicCounter
	misses    atomicCounter
	evictions atomicCounter
}

// New constructs a Cache bounded by both maxEntries and maxBytes; an
// insertion that would exceed either bound evicts least-recently-used
// entries until both hold again.
func New(maxEntries, maxBytes int64) (*Cache, error) {
	engine, err := ristretto.NewCache(&ristretto.Config[Key, *Entry]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		engine:     engine,
		recency:    list.New(),
		elements:   make(map[Key]*list.Element),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}, nil
}

// Get looks up a key without affecting its recency-list accounting beyond
// marking it most-recently-used.
func (c *Cache) Get(key Key) (*Entry, bool) {
	val, ok := c.engine.Get(key)
	if !ok {
		c.misses.add(1)
		return nil, false
	}
	c.hits.add(1)
	c.touch(key)
	return val, true
}

// Insert stores an image under key, evicting least-recently-used entries
// first if either bound would otherwise be exceeded.
func (c *Cache) Insert(key Key, entry *Entry) {
	c.mu.Lock()
	c.insertLocked(key, entry)
	c.mu.Unlock()
}

// GetOrInsert is the atomic "only one loader runs for a given missing
// key" operation spec.md 4.2 requires. Concurrent callers for the same key
// block on the same in-flight loader via singleflight, matching the
// coalescing idiom used throughout the pack for expensive cache fills.
func (c *Cache) GetOrInsert(key Key, loader func() (*Entry, error)) (*Entry, error) {
	if entry, ok := c.Get(key); ok {
		return entry, nil
	}

	v, err, _ := c.group.Do(keyString(key), func() (any, error) {
		if entry, ok := c.Get(key); ok {
			return entry, nil
		}
		entry, err := loader()
		if err != nil {
			return nil, err
		}
		c.Insert(key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Remove drops a single key, if present.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Del(key)
	if el, ok := c.elements[key]; ok {
		c.bytesTotal -= el.Value.(*recencyNode).cost
		c.recency.Remove(el)
		delete(c.elements, key)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Clear()
	c.recency.Init()
	c.elements = make(map[Key]*list.Element)
	c.bytesTotal = 0
}

// Stats returns a snapshot of hit/miss/eviction counters and current
// occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	count := len(c.elements)
	bytes := c.bytesTotal
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.load(),
		Misses:    c.misses.load(),
		Evictions: c.evictions.load(),
		Count:     count,
		Bytes:     bytes,
	}
}

// recencyNode is the payload stored in the recency list; it lets us map a
// list.Element back to the Key it represents for eviction.
type recencyNode struct {
	key  Key
	cost int64
}

func (c *Cache) insertLocked(key Key, entry *Entry) {
	c.engine.Set(key, entry, entry.Cost)
	c.engine.Wait()

	if el, exists := c.elements[key]; exists {
		c.bytesTotal -= el.Value.(*recencyNode).cost
		c.recency.Remove(el)
		delete(c.elements, key)
	}

	el := c.recency.PushFront(&recencyNode{key: key, cost: entry.Cost})
	c.elements[key] = el
	c.bytesTotal += entry.Cost

	c.evictUntilWithinBoundsLocked()
}

func (c *Cache) evictUntilWithinBoundsLocked() {
	for int64(len(c.elements)) > c.maxEntries || c.bytesTotal > c.maxBytes {
		oldest := c.recency.Back()
		if oldest == nil {
			return
		}
		node := oldest.Value.(*recencyNode)
		c.engine.Del(node.key)
		c.recency.Remove(oldest)
		delete(c.elements, node.key)
		c.bytesTotal -= node.cost
		c.evictions.add(1)
	}
}

func (c *Cache) touch(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[key]
	if !ok {
		return
	}
	c.recency.MoveToFront(el)
}

func keyString(k Key) string {
	return k.Path + "\x00" + k.ModTime.String()
}
