// Package cache provides a bounded, sharded, concurrent LRU cache: an
// in-process lookup accelerator for short-lived keyed records (for example
// per-IP policy decisions) under high read/write concurrency.
//
// Design
//
//   - Sharding: the cache is split into independent shards selected from the
//     HIGH 16 bits of the key hash. Shards share no state and never
//     synchronise with each other; eviction order is per-shard. Capacity is
//     split across shards, the first shard taking the remainder.
//
//   - Shard storage: each shard pairs a lock-striped map (per-stripe RWMutex,
//     stripes chosen from the LOW hash bits — deliberately disjoint from the
//     shard-selection bits) with a doubly linked recency list behind a single
//     mutex. An atomic counter reconciles the two structures.
//
//   - Reads: Get copies the value out under a stripe read lock, then attempts
//     the recency promotion with TryLock. A read never blocks on the list
//     mutex; under contention the promotion is simply skipped. Losing an
//     occasional recency update is acceptable, degrading read latency is not.
//
//   - Writes: Add is insert-only (no update on conflict). When the shard is
//     full it evicts the least-recently-used entry before linking the new
//     one. Concurrent adds can race past their evictions and push the shard
//     transiently above capacity — by at most the number of in-flight adds —
//     and each add then performs at most one CAS-gated corrective eviction;
//     there is intentionally no eviction loop on the insert path. An add
//     whose increment lifts the count from exactly capacity to capacity+1
//     performs no correction, so after a burst a shard can hold one entry
//     above capacity until its next add evicts it.
//
//   - Removal: Remove erases the map entry under the stripe's exclusive
//     lock; only the winner of that erase unlinks the node its delete
//     returned, decrements and reports true.
//
//   - GetOrLoad: coalesces concurrent loads for the same key using
//     singleflight. If Loader is nil, GetOrLoad returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     By default NoopMetrics is used; plug a Prometheus adapter to export
//     metrics.
//
// There is no TTL and no cost accounting: eviction is capacity-triggered
// only. Records that expire (like policy decisions with an expiry timestamp)
// carry the deadline in the value and the caller interprets it.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{Capacity: 10_000})
//	c.Add("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v // a stable copy, independent of later cache operations
//	}
//	c.Remove("a")
//
// With GetOrLoad (singleflight)
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    Capacity: 1024,
//	    Loader: func(ctx context.Context, k string) (string, error) {
//	        // e.g. fetch from DB
//	        return "v:" + k, nil
//	    },
//	})
//	v, err := c.GetOrLoad(context.Background(), "key")
//
// Exporting metrics (example Prometheus adapter)
//
//	m := prom.New(nil, "scalelru", "demo", nil) // implements Metrics
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    Capacity: 10_000,
//	    Metrics:  m,
//	})
//
// Thread-safety & complexity
//
// All methods except Clear are safe for concurrent use. Typical operation
// cost is O(1) expected time: one striped map access and a constant amount
// of pointer fixes. Len is eventually consistent and exact only at
// quiescence.
package cache
