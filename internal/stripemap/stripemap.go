// Package stripemap implements a lock-striped hash map: a fixed, power-of-two
// set of plain Go maps, each guarded by its own RWMutex. Readers of different
// keys proceed in parallel; writers contend only within one stripe.
//
// The stripe for a key is chosen from the LOW bits of the caller-supplied
// hash. Callers that partition on the same hash (e.g. shard selection) must
// use a disjoint bit region, or stripe choice and partition choice correlate
// and hot stripes appear.
package stripemap

import (
	"sync"

	"github.com/IvanBrykalov/scalelru/internal/util"
)

// stripe is one bucket group: a map behind its own lock, padded so adjacent
// stripes never share a cache line.
type stripe[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
	_  util.CacheLinePad
}

// Map is a concurrent map from K to V with short-lived, per-key locking.
// The zero value is not usable; construct with New.
type Map[K comparable, V any] struct {
	stripes []stripe[K, V]
	mask    uint64
	hash    func(K) uint64
}

// New builds a Map with at least the requested number of stripes (rounded up
// to a power of two, minimum 1) using hash to place keys.
func New[K comparable, V any](stripes int, hash func(K) uint64) *Map[K, V] {
	if stripes < 1 {
		stripes = 1
	}
	n := int(util.NextPow2(uint64(stripes)))
	m := &Map[K, V]{
		stripes: make([]stripe[K, V], n),
		mask:    uint64(n - 1),
		hash:    hash,
	}
	for i := range m.stripes {
		m.stripes[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) stripeFor(k K) *stripe[K, V] {
	return &m.stripes[m.hash(k)&m.mask]
}

// Get returns a copy of the value for k under the stripe's read lock.
// The copy is independent of the map once Get returns.
func (m *Map[K, V]) Get(k K) (V, bool) {
	s := m.stripeFor(k)
	s.mu.RLock()
	v, ok := s.m[k]
	s.mu.RUnlock()
	return v, ok
}

// PutIfAbsent installs k→v only if k is not present and reports whether it
// did. The existing value is never touched on conflict.
func (m *Map[K, V]) PutIfAbsent(k K, v V) bool {
	s := m.stripeFor(k)
	s.mu.Lock()
	if _, exists := s.m[k]; exists {
		s.mu.Unlock()
		return false
	}
	s.m[k] = v
	s.mu.Unlock()
	return true
}

// Delete removes k and returns the previous value and whether k was present.
// Concurrent deletes of the same key succeed for exactly one caller; the
// losers observe absence.
func (m *Map[K, V]) Delete(k K) (V, bool) {
	s := m.stripeFor(k)
	s.mu.Lock()
	v, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return v, ok
}

// Len counts entries stripe by stripe. The total is exact only at quiescence.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.stripes {
		s := &m.stripes[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Range calls f for every entry until f returns false. Each stripe is visited
// under its read lock; entries added or removed concurrently in stripes not
// yet visited may or may not be seen.
func (m *Map[K, V]) Range(f func(K, V) bool) {
	for i := range m.stripes {
		s := &m.stripes[i]
		s.mu.RLock()
		for k, v := range s.m {
			if !f(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Clear drops every entry. Stripes are cleared one at a time, so a concurrent
// reader may still observe entries in stripes not yet reached.
func (m *Map[K, V]) Clear() {
	for i := range m.stripes {
		s := &m.stripes[i]
		s.mu.Lock()
		clear(s.m)
		s.mu.Unlock()
	}
}
