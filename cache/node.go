package cache

// node is an element of a shard's recency list. It carries a copy of the key
// so that eviction can erase the map entry without a reverse lookup.
//
// A node lives in two structures at once: the list links it, and the map's
// slot holds a non-owning reference to it. Link fields are only ever touched
// under the shard's list mutex.
type node[K comparable] struct {
	key  K
	prev *node[K]
	next *node[K]
}

// inList reports whether the node currently sits between the list sentinels.
// Sentinels bracket every linked node, so a linked node's prev is never nil;
// nil prev is the reserved "not in list" state set by unlink. The check is
// only meaningful under the list mutex — it is what keeps two racing
// unlinkers (remove vs. eviction) from detaching the same node twice.
func (n *node[K]) inList() bool { return n.prev != nil }
