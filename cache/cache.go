package cache

import (
	"context"
	"sync/atomic"

	"github.com/IvanBrykalov/scalelru/internal/singleflight"
	"github.com/IvanBrykalov/scalelru/internal/util"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
var ErrNoLoader = errorsNew("cache: no Loader provided")

// lightweight local errors.New to avoid importing std 'errors' everywhere
func errorsNew(s string) error { return &strErr{s} }

type strErr struct{ s string }

func (e *strErr) Error() string { return e.s }

// cache fans operations out to a fixed set of shards by key hash.
// Shards are mutually independent and never synchronise with each other.
// All methods except Clear are safe for concurrent use.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool

	opt Options[K, V]

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - nil Hasher   -> util.Hash64
//   - Shards <= 0  -> hardware thread count (clamped to Capacity)
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity <= 0 {
		panic("Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Hasher == nil {
		opt.Hasher = util.Hash64[K]
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.DefaultShardCount()
	}
	// Keep every shard's capacity >= 1; a zero-capacity shard could never
	// account its own entries.
	if sh > opt.Capacity {
		sh = opt.Capacity
	}

	stripes := opt.Stripes
	if stripes <= 0 {
		stripes = 4 * util.DefaultShardCount()
	}

	// Split capacity across shards; shard 0 takes the remainder so the
	// per-shard capacities sum exactly to the requested total.
	base := opt.Capacity / sh
	rem := opt.Capacity % sh

	cs := make([]*shard[K, V], sh)
	for i := 0; i < sh; i++ {
		c := base
		if i == 0 {
			c += rem
		}
		cs[i] = newShard[K, V](c, stripes, opt)
	}

	// return pointer-to-impl as the interface (avoids unexported-return lint)
	return &cache[K, V]{
		shards: cs,
		hash:   opt.Hasher,
		opt:    opt,
	}
}

// ---- Cache[K,V] implementation ----

// Add inserts k→v only if absent.
// Returns false if the key already exists (no update is performed).
func (c *cache[K, V]) Add(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).add(k, v)
}

// Get returns the value for k and a presence flag.
// On hit, the entry is opportunistically promoted to most-recently-used.
func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).get(k)
}

// Remove deletes k if present and returns true when this call removed it.
func (c *cache[K, V]) Remove(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).remove(k)
}

// Clear empties every shard in turn. Callers must quiesce first.
func (c *cache[K, V]) Clear() {
	for _, s := range c.shards {
		s.clear()
	}
}

// Len returns the total number of resident entries across all shards.
func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

// LenOfShard returns the resident entry count of shard i (0 if out of range).
func (c *cache[K, V]) LenOfShard(i int) int {
	if i < 0 || i >= len(c.shards) {
		return 0
	}
	return c.shards[i].len()
}

// Capacity returns the total entry limit across all shards.
func (c *cache[K, V]) Capacity() int {
	total := 0
	for _, s := range c.shards {
		total += s.capacity()
	}
	return total
}

// CapacityOfShard returns the entry limit of shard i (0 if out of range).
func (c *cache[K, V]) CapacityOfShard(i int) int {
	if i < 0 || i >= len(c.shards) {
		return 0
	}
	return c.shards[i].capacity()
}

// ShardCount returns the number of shards.
func (c *cache[K, V]) ShardCount() int { return len(c.shards) }

// Close marks the cache as closed. Later Add, Get and Remove calls are
// ignored; see Cache.Close for what still runs.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key (singleflight).
// If no Loader is configured, returns ErrNoLoader.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	// singleflight: exactly one real load for the key
	return c.sf.Do(ctx, k, func() (V, error) {
		// double-check after flight join
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err == nil {
			// Another writer may have installed the key meanwhile; the
			// failed Add is fine, the resident value wins.
			c.Add(k, v)
		}
		return v, err
	})
}

// ---- helpers ----

// getShard picks a shard from the high 16 bits of the key hash. The stripe
// map inside the shard buckets on the low bits, so the two choices stay
// uncorrelated and one shard's hot keys do not pile into one stripe.
func (c *cache[K, V]) getShard(k K) *shard[K, V] {
	return c.shards[util.ShardIndexHigh(c.hash(k), len(c.shards))]
}
