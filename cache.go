package racstream

import (
	"weak"

	lru "github.com/hashicorp/golang-lru"

	"racstream/internal/keylock"
)

// defaultCacheEntries bounds the number of distinct chunks the
// DecompressionCache tracks at once. Bounding is belt-and-braces: the
// weak references let the garbage collector reclaim payloads under
// memory pressure regardless of this limit, but the LRU list itself
// would otherwise grow without bound across a long-lived reader.
const defaultCacheEntries = 4096

// DecompressionCache memoizes the decompressed payload of recently
// touched chunks, keyed by each chunk's logical start. Cached entries
// are held weakly: the collector may reclaim a payload at any time, in
// which case a lookup reports a miss just as if the entry had been
// evicted. A per-key Coordinator ensures that, under concurrent access,
// only one goroutine decompresses a given chunk at a time; a goroutine
// that wakes from a wait must re-attempt the lookup rather than assume
// the winner filled the cache on its behalf (the winner's entry may
// already have been weakly reclaimed).
type DecompressionCache struct {
	lru   *lru.Cache
	coord keylock.Coordinator[int64]
}

// NewDecompressionCache creates a cache holding up to maxEntries
// distinct chunks. maxEntries <= 0 selects defaultCacheEntries.
func NewDecompressionCache(maxEntries int) (*DecompressionCache, error) {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	c, err := lru.New(maxEntries)
	if err != nil {
		return nil, err
	}
	return &DecompressionCache{lru: c}, nil
}

// Lock begins the critical section for key, blocking until no other
// goroutine is computing it. Callers must re-check Get after Lock
// returns: the entry they were waiting on may have already been
// reclaimed or evicted.
func (c *DecompressionCache) Lock(key int64) { c.coord.Lock(key) }

// Unlock ends the critical section for key.
func (c *DecompressionCache) Unlock(key int64) { c.coord.Unlock(key) }

// Get returns the cached buffer for key with a new reference held, or
// (nil, false) on a miss — whether because the key was never stored,
// was evicted by the LRU, or its payload was reclaimed (or already
// released back to refcount zero) since it was stored.
func (c *DecompressionCache) Get(key int64) (*SharedBuffer, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	ptr := v.(weak.Pointer[SharedBuffer])
	buf := ptr.Value()
	if buf == nil {
		c.lru.Remove(key)
		return nil, false
	}
	// buf being weak-reachable only means the *struct* hasn't been
	// collected yet; its refcount may already have hit zero, in which
	// case its data was returned to the pool (and may already be backing
	// a different, concurrently written chunk). tryRetain refuses to
	// revive a zero count, so that case is a miss, same as a nil weak
	// pointer.
	if !buf.tryRetain() {
		c.lru.Remove(key)
		return nil, false
	}
	return buf, true
}

// Put records buf as the cached payload for key. The cache itself holds
// only a weak reference; it does not keep buf alive and does not
// Retain/Release it. Callers should hold their own reference to buf for
// as long as they need it regardless of cache residency.
func (c *DecompressionCache) Put(key int64, buf *SharedBuffer) {
	c.lru.Add(key, weak.Make(buf))
}

// Remove evicts key from the cache, if present.
func (c *DecompressionCache) Remove(key int64) {
	c.lru.Remove(key)
}

// Len reports the number of entries currently tracked (including ones
// whose weak reference may already have been reclaimed).
func (c *DecompressionCache) Len() int {
	return c.lru.Len()
}
