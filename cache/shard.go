package cache

import (
	"sync"

	"github.com/IvanBrykalov/scalelru/internal/stripemap"
	"github.com/IvanBrykalov/scalelru/internal/util"
)

// slot is the map's value cell: a copy of the payload plus a non-owning
// reference to the entry's recency-list node. The node reference is written
// once, before the slot enters the map, and never mutated afterwards.
type slot[K comparable, V any] struct {
	val V
	n   *node[K]
}

// shard is one independent LRU partition: a lock-striped map for lookups and
// a doubly linked recency list for eviction order, coordinated through an
// atomic size counter.
//
// The two structures are deliberately NOT guarded by one lock. Readers touch
// only a map stripe; list maintenance serializes on listMu alone; the size
// counter reconciles the two. The price is a bounded transient overshoot:
// with W concurrent adds in flight, size may briefly reach cap+W before the
// per-add corrective eviction converges it back under cap.
type shard[K comparable, V any] struct {
	m *stripemap.Map[K, slot[K, V]]

	// listMu guards head/tail and every node link field.
	// get() only ever TryLocks it; all other paths block.
	listMu sync.Mutex
	head   node[K] // head.next is the least-recently-used entry
	tail   node[K] // tail.prev is the most-recently-used entry

	// size counts resident entries. popFront never touches it: accounting
	// stays with add/remove so that an eviction and the add that caused it
	// cancel out instead of double-counting.
	size util.PaddedAtomicInt64
	cap  int64

	opt Options[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// newShard initializes a shard with its per-shard capacity and stripe count.
func newShard[K comparable, V any](capacity, stripes int, opt Options[K, V]) *shard[K, V] {
	s := &shard[K, V]{
		m:   stripemap.New[K, slot[K, V]](stripes, opt.Hasher),
		cap: int64(capacity),
		opt: opt,
	}
	s.head.next = &s.tail
	s.tail.prev = &s.head
	return s
}

// get returns a copy of the value for k. On a hit it attempts to promote the
// entry to most-recently-used, but strictly best-effort: the read path never
// queues behind list writers, and a promotion lost to contention is fine.
func (s *shard[K, V]) get(k K) (V, bool) {
	sl, ok := s.m.Get(k)
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}

	if s.listMu.TryLock() {
		// The node may have been unlinked by a racing remove/eviction
		// between the map read and here; inList gates the relink.
		if sl.n.inList() {
			s.unlink(sl.n)
			s.append(sl.n)
		}
		s.listMu.Unlock()
	}

	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return sl.val, true
}

// add inserts k→v only if absent and reports whether it did. The new entry
// becomes most-recently-used; at most two evictions run to respect capacity
// (one ahead of the insert, one corrective).
func (s *shard[K, V]) add(k K, v V) bool {
	n := &node[K]{key: k}
	if !s.m.PutIfAbsent(k, slot[K, V]{val: v, n: n}) {
		return false
	}

	// Evict ahead of linking when the shard is already full. The plain load
	// is a deliberate sample: concurrent adds may all observe the
	// pre-eviction count, which the recovery below corrects.
	size := s.size.Load()
	popped := false
	if size >= s.cap {
		s.popFront(EvictCapacity)
		popped = true
	}

	s.listMu.Lock()
	s.append(n)
	s.listMu.Unlock()

	if !popped {
		size = s.size.Add(1) - 1 // prior value, matching the sample above
	}

	// Overshoot recovery. size here is the count observed BEFORE this add
	// settled; if it already exceeded capacity, racing adds outran their
	// evictions. Exactly one corrective eviction per add, gated by the CAS:
	// a failed CAS means another add moved the counter and will correct in
	// turn. A retry loop here would trade the bounded overshoot for
	// unbounded insert tail latency, so there is none.
	if size > s.cap {
		if s.size.CompareAndSwap(size, size-1) {
			s.popFront(EvictOvershoot)
		}
	}

	s.opt.Metrics.Size(int(s.size.Load()))
	return true
}

// remove erases k and reports whether this call removed it. Everything rides
// on the exclusive map delete: of two racing removes only the delete winner
// unlinks, accounts and returns true — and it unlinks the node its OWN
// delete returned. A node captured by an earlier shared lookup could be
// stale by delete time (removed and re-added under the same key), and
// unlinking it would leave the successor entry linked forever.
func (s *shard[K, V]) remove(k K) bool {
	sl, won := s.m.Delete(k)
	if !won {
		return false
	}

	s.listMu.Lock()
	if sl.n.inList() {
		s.unlink(sl.n)
	}
	s.listMu.Unlock()

	s.size.Add(-1)
	s.opt.Metrics.Size(int(s.size.Load()))
	return true
}

// popFront evicts the least-recently-used entry, if any. It does not touch
// the size counter; the caller owns the accounting.
func (s *shard[K, V]) popFront(reason EvictReason) {
	s.listMu.Lock()
	victim := s.head.next
	if victim == &s.tail {
		s.listMu.Unlock()
		return
	}
	s.unlink(victim)
	key := victim.key
	s.listMu.Unlock()

	// The victim's map entry may already be gone if a remove raced and won;
	// the removal was accounted there and this eviction becomes a no-op.
	sl, ok := s.m.Delete(key)
	if !ok {
		return
	}

	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(key, sl.val, reason)
	}
}

// clear drops every entry. Not safe against concurrent mutators; listMu is
// still taken so a racing get's try-lock promotion cannot interleave with
// the walk.
func (s *shard[K, V]) clear() {
	s.m.Clear()

	s.listMu.Lock()
	n := s.head.next
	for n != &s.tail {
		next := n.next
		n.prev, n.next = nil, nil
		n = next
	}
	s.head.next = &s.tail
	s.tail.prev = &s.head
	s.listMu.Unlock()

	s.size.Store(0)
	s.opt.Metrics.Size(0)
}

// len returns the shard's resident entry count. Eventually consistent: it
// may lag or lead the true count by the number of in-flight adds.
func (s *shard[K, V]) len() int {
	n := s.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

func (s *shard[K, V]) capacity() int { return int(s.cap) }

// -------------------- list maintenance (listMu held) --------------------

// unlink detaches n and marks it "not in list" by nilling prev.
func (s *shard[K, V]) unlink(n *node[K]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

// append links n adjacent to the tail sentinel, i.e. most-recently-used.
func (s *shard[K, V]) append(n *node[K]) {
	last := s.tail.prev
	n.next = &s.tail
	n.prev = last
	s.tail.prev = n
	last.next = n
}
