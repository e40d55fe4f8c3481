package util

import (
	"math/bits"
	"runtime"
)

// shardShift discards the low bits of the hash when selecting a shard.
// The stripe map buckets on the low bits, so shard choice must come from a
// disjoint region of the word; the top 16 bits are used.
const shardShift = bits.UintSize - 16

// DefaultShardCount is the shard count used when the caller does not pick
// one: the hardware thread count, at least 1.
func DefaultShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return p
}

// ShardIndexHigh maps a 64-bit hash to a shard index using the high 16 bits.
// Power-of-two shard counts take the mask fast path; arbitrary counts use
// modulo.
func ShardIndexHigh(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	h := hash >> shardShift
	if IsPowerOfTwo(uint64(shards)) {
		return int(h & uint64(shards-1))
	}
	return int(h % uint64(shards))
}
