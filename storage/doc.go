// Package storage provides a sharded, byte-budgeted in-memory LRU store.
//
// Design
//
//   - Storage: each shard keeps an intrusive MRU↔LRU doubly linked list of
//     entries backed by a slice arena (nodes are addressed by index, not
//     pointer) plus a map[string]int32 for O(1) lookup. This avoids
//     duplicating key bytes between the index and the list: the index
//     holds the same string header the node holds, never a second copy.
//
//   - Budget: a shard tracks cur_bytes = Σ(len(key)+len(value)) over its
//     resident entries and never lets it exceed max_bytes. Put evicts from
//     the LRU end, one entry at a time, until the incoming entry fits. An
//     entry whose own size exceeds max_bytes is rejected outright.
//
//   - Concurrency: the store is split into shards, each protected by its
//     own sync.Mutex. A key is routed to exactly one shard by hashing
//     (internal/util.Fnv64a) and masking/modulo (internal/util.ShardIndex).
//     No operation ever holds more than one shard's lock, and no operation
//     suspends while holding it.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals, mirroring
//     a Prometheus-friendly adapter shape; NoopMetrics is the default.
//
// Thread-safety & complexity
//
// All Store methods are safe for concurrent use. Operations are O(1)
// amortized, aside from eviction, which is O(k) in the number of entries
// evicted to make room for one incoming entry.
package storage
