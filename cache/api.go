package cache

import "context"

// Cache is a sharded, in-memory LRU key/value cache interface.
// All methods except Clear are safe for concurrent use by multiple goroutines.
//
// Typical complexity for operations is amortized O(1):
// a striped map access plus constant-time list adjustments under a shard's
// list mutex.
type Cache[K comparable, V any] interface {
	// Add inserts k→v only if k is not present.
	// Returns false if the key already exists (no update is performed).
	// The new entry becomes most-recently-used; the shard may evict its
	// least-recently-used entry to respect capacity.
	Add(k K, v V) bool

	// Get returns a copy of the value for k and a presence flag. The copy
	// is independent of cache state once returned. On hit, the entry is
	// promoted to most-recently-used — opportunistically: the promotion is
	// attempted with a non-blocking lock and skipped under contention, so
	// reads never stall behind writers of the recency list.
	Get(k K) (V, bool)

	// Remove deletes k and returns true if this call removed it. Of two
	// concurrent removes of the same key exactly one returns true.
	Remove(k K) bool

	// Clear empties the cache. NOT safe with concurrent Add/Get/Remove;
	// callers must quiesce first. Afterwards Len() == 0 and every prior
	// key is absent.
	Clear()

	// Len returns the total number of resident entries across all shards.
	// Eventually consistent: under load it may transiently lag or lead the
	// true count by the number of in-flight Adds.
	Len() int

	// LenOfShard returns the entry count of one shard (0 if out of range).
	LenOfShard(i int) int

	// Capacity returns the total entry limit, the sum over shards.
	Capacity() int

	// CapacityOfShard returns one shard's entry limit (0 if out of range).
	CapacityOfShard(i int) int

	// ShardCount returns the number of shards.
	ShardCount() int

	// Close marks the cache closed and returns nil. On a closed cache Add
	// and Remove return false and Get misses. Clear and the size/capacity
	// queries still operate, and GetOrLoad still calls the Loader and
	// returns its result without caching it.
	Close() error

	// GetOrLoad returns the value for k, loading it via Options.Loader on
	// miss. Concurrent loads for the same key are coalesced (singleflight).
	// If no Loader was configured, returns ErrNoLoader.
	GetOrLoad(ctx context.Context, k K) (V, error)
}
