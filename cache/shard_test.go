package cache

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

// oneShard builds a single-shard cache and hands back the shard for
// white-box checks.
func oneShard(t *testing.T, capacity int) (Cache[int, int], *shard[int, int]) {
	t.Helper()
	c := New[int, int](Options[int, int]{Capacity: capacity, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })
	return c, c.(*cache[int, int]).shards[0]
}

// Get must not block on the list mutex: with the mutex held by another
// goroutine the value is still returned, only the promotion is dropped.
// The dropped promotion is observable through the next eviction choice.
func TestShard_GetSkipsPromotionUnderContention(t *testing.T) {
	t.Parallel()

	c, s := oneShard(t, 2)

	c.Add(1, 10)
	c.Add(2, 20)

	// Hold the list mutex, posing as a busy writer.
	s.listMu.Lock()
	v, ok := c.Get(1) // must return immediately, without the promotion
	s.listMu.Unlock()

	if !ok || v != 10 {
		t.Fatalf("Get under contention want 10, got %v ok=%v", v, ok)
	}

	// Had the promotion happened, 2 would now be LRU. It did not, so the
	// next insert evicts 1.
	c.Add(3, 30)
	if _, ok := c.Get(1); ok {
		t.Fatal("1 must be evicted: its promotion was skipped")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatal("2 must survive")
	}
}

// Uncontended Get does promote.
func TestShard_GetPromotesWhenUncontended(t *testing.T) {
	t.Parallel()

	c, _ := oneShard(t, 2)

	c.Add(1, 10)
	c.Add(2, 20)
	c.Get(1)      // promotes: recency now 2, 1
	c.Add(3, 30)  // evicts 2

	if _, ok := c.Get(2); ok {
		t.Fatal("2 must be evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("1 must survive (promoted)")
	}
}

// The node lifecycle: detached on allocation, linked after add, unlinked
// (prev == nil) after remove.
func TestShard_NodeStateMachine(t *testing.T) {
	t.Parallel()

	c, s := oneShard(t, 4)

	c.Add(7, 70)
	sl, ok := s.m.Get(7)
	if !ok {
		t.Fatal("slot must exist")
	}
	s.listMu.Lock()
	linked := sl.n.inList()
	s.listMu.Unlock()
	if !linked {
		t.Fatal("node must be linked after Add")
	}

	c.Remove(7)
	s.listMu.Lock()
	linked = sl.n.inList()
	s.listMu.Unlock()
	if linked {
		t.Fatal("node must be unlinked after Remove")
	}
}

// popFront on an empty shard is a no-op.
func TestShard_PopFrontEmpty(t *testing.T) {
	t.Parallel()

	_, s := oneShard(t, 4)

	s.popFront(EvictCapacity)
	if got := s.len(); got != 0 {
		t.Fatalf("len want 0, got %d", got)
	}
}

// The size decrement rides on the exclusive map delete: of N concurrent
// removes of one key exactly one wins, and the counter drops by exactly one.
// A decrement tied to the initial lookup instead would go negative here.
func TestShard_ConcurrentRemovesSingleWinner(t *testing.T) {
	c, s := oneShard(t, 4)

	for round := 0; round < 500; round++ {
		if !c.Add(round, round) {
			t.Fatalf("Add %d must succeed", round)
		}

		var wins int32
		var wg sync.WaitGroup
		wg.Add(4)
		for i := 0; i < 4; i++ {
			go func() {
				defer wg.Done()
				if c.Remove(round) {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("round %d: want exactly 1 winning remove, got %d", round, wins)
		}
		if got := s.len(); got != 0 {
			t.Fatalf("round %d: size must return to 0, got %d", round, got)
		}
	}
}

// Removes racing with re-adds of the same key: a remove that captured one
// incarnation of the key but whose delete lands on a later incarnation must
// unlink the node it actually deleted, or that incarnation's node would stay
// linked forever with no backing slot. The invariant walk below fails if any
// round leaks a node.
func TestShard_RemoveRacingReAddSameKey(t *testing.T) {
	c, s := oneShard(t, 8)

	for round := 0; round < 2_000; round++ {
		c.Add(1, round)

		var wg sync.WaitGroup
		wg.Add(3)
		for i := 0; i < 2; i++ {
			go func() {
				defer wg.Done()
				c.Remove(1)
			}()
		}
		go func() {
			defer wg.Done()
			c.Add(1, -round)
		}()
		wg.Wait()

		// Settle: whatever incarnation survived, drop it.
		c.Remove(1)
		checkShardInvariants(t, s)
		if got := s.len(); got != 0 {
			t.Fatalf("round %d: size must return to 0, got %d", round, got)
		}
	}
}

// checkShardInvariants asserts, at quiescence: size == slot count == linked
// node count, size <= capacity, the list is a well-formed chain, and map and
// list reference exactly the same nodes.
func checkShardInvariants[K comparable, V any](t *testing.T, s *shard[K, V]) {
	t.Helper()

	s.listMu.Lock()
	defer s.listMu.Unlock()

	linked := 0
	nodes := make(map[*node[K]]bool)
	prev := &s.head
	for n := s.head.next; n != &s.tail; n = n.next {
		if n.prev != prev {
			t.Fatalf("broken back-link at list position %d", linked)
		}
		nodes[n] = true
		prev = n
		linked++
		if linked > int(s.cap)+1 {
			t.Fatalf("list longer than capacity+1: cycle?")
		}
	}
	if s.tail.prev != prev {
		t.Fatal("tail back-link broken")
	}

	slots := 0
	s.m.Range(func(k K, sl slot[K, V]) bool {
		if !nodes[sl.n] {
			t.Fatalf("slot for key %v references a node not in the list", k)
		}
		if sl.n.key != k {
			t.Fatalf("node key mismatch for %v", k)
		}
		slots++
		return true
	})

	size := int(s.size.Load())
	if size != slots || size != linked {
		t.Fatalf("size=%d slots=%d linked=%d must all agree", size, slots, linked)
	}
	if size > int(s.cap) {
		t.Fatalf("quiescent size %d exceeds capacity %d", size, s.cap)
	}
}

// Concurrent distinct-key inserts: after the barrier every shard satisfies
// the structural invariants and sits at or under its capacity.
func TestShard_InvariantsAfterConcurrentInserts(t *testing.T) {
	const (
		capacity = 1000
		shards   = 8
		workers  = 8
		perW     = 10_000
	)
	c := New[string, int](Options[string, int]{Capacity: capacity, Shards: shards})
	t.Cleanup(func() { _ = c.Close() })

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		base := w * perW
		g.Go(func() error {
			for i := 0; i < perW; i++ {
				c.Add("k:"+strconv.Itoa(base+i), i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	impl := c.(*cache[string, int])
	for _, s := range impl.shards {
		checkShardInvariants(t, s)
	}

	// Insert traffic far exceeded capacity, so the cache must be full-ish
	// but never above capacity after quiescence.
	if got := c.Len(); got > capacity || got < capacity/2 {
		t.Fatalf("Len after join want in [%d..%d], got %d", capacity/2, capacity, got)
	}
}

// Mixed concurrent load: at no observation point may the resident count
// exceed capacity plus the number of in-flight writers.
func TestShard_OvershootBounded(t *testing.T) {
	const (
		capacity = 128
		workers  = 8
	)
	c := New[int, int](Options[int, int]{Capacity: capacity, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				k := id*1_000_000 + i
				c.Add(k, i)
				if i%3 == 0 {
					c.Get(k - 1)
				}
				if i%7 == 0 {
					c.Remove(k - 2)
				}
			}
		}(w)
	}

	for i := 0; i < 20_000; i++ {
		if got := c.Len(); got > capacity+workers {
			close(stop)
			wg.Wait()
			t.Fatalf("observed Len %d above bound %d", got, capacity+workers)
		}
		if i%1000 == 0 {
			runtime.Gosched()
		}
	}
	close(stop)
	wg.Wait()
}
