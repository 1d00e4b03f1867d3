package storage

// nilIdx marks the absence of a list neighbor inside the arena.
const nilIdx int32 = -1

// node is an intrusive doubly linked list element owned by a shard's arena.
// Nodes are addressed by slice index rather than pointer so that eviction
// and move-to-MRU never allocate and the free list can reclaim slots
// without ever touching unrelated entries.
type node struct {
	key string
	val []byte

	// cost is len(key)+len(val), cached so budget accounting never
	// re-measures the strings.
	cost int

	// Intrusive list links: head is MRU, tail is LRU. nilIdx means "none".
	prev int32
	next int32

	// inUse distinguishes a live node from a free-list slot. freeNode
	// clears a freed slot's key and val so the GC can reclaim them before
	// the slot is reused.
	inUse bool
}
