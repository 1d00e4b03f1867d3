package storage

// EvictReason explains why an entry was removed from a shard.
type EvictReason int

const (
	// EvictLRU — removed from the LRU end to make room for an incoming entry.
	EvictLRU EvictReason = iota
)

// Options configures a Store. Zero values are safe except TotalBytes, which
// must be positive.
type Options struct {
	// TotalBytes is the aggregate key+value byte budget across all shards.
	TotalBytes int

	// Shards is the number of shards. If 0, a default derived from
	// runtime.GOMAXPROCS is used (see ReasonableShardCount).
	Shards int

	// OnEvict, if set, is called synchronously (under the shard lock) for
	// every eviction. Keep it lightweight — it runs on the hot path.
	OnEvict func(key string, value []byte, reason EvictReason)

	// Metrics receives Hit/Miss/Evict/Size signals; nil => NoopMetrics.
	Metrics Metrics
}
