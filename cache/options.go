package cache

import "context"

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity — the shard was at capacity when an insert arrived.
	EvictCapacity EvictReason = iota
	// EvictOvershoot — a corrective eviction after concurrent inserts drove
	// the shard transiently above capacity.
	EvictOvershoot
)

// Options configures the cache. Zero values are safe; sane defaults are
// applied in New():
//   - Shards <= 0  => hardware thread count
//   - Stripes <= 0 => auto (≈ 4×GOMAXPROCS per shard, power of two)
//   - nil Hasher   => util.Hash64
//   - nil Metrics  => NoopMetrics
type Options[K comparable, V any] struct {
	// Capacity is the total entry limit across all shards. Must be > 0.
	// Eviction is strictly capacity-triggered; there is no TTL and no
	// size-in-bytes accounting. Entries that carry their own expiry
	// timestamps are interpreted by the caller, not by the cache.
	Capacity int

	// Shards is the number of independent partitions. If 0, the hardware
	// thread count is used. Clamped to Capacity so every shard owns at
	// least one entry of budget.
	Shards int

	// Stripes is the lock-stripe count of each shard's map. If 0, an
	// automatic power of two is chosen.
	Stripes int

	// Hasher maps a key to 64 bits. It must be a pure function whose
	// equality is consistent with ==, with good mixing at both ends of the
	// word: shard selection reads the high 16 bits, stripe selection the
	// low bits. Nil selects the built-in hasher.
	Hasher func(K) uint64

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// OnEvict is called after an entry has been evicted, outside any cache
	// lock, with copies of the key and value. Not called for Remove.
	OnEvict func(k K, v V, reason EvictReason)

	// Metrics receives Hit/Miss/Evict/Size signals. Nil => NoopMetrics.
	Metrics Metrics
}
