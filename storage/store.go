package storage

import (
	"fmt"

	"github.com/afinago/kvsrv/internal/util"
)

const (
	minShardBytes = 8
	maxShardBytes = 1 << 20 // 1 MiB
)

// Store is a hash-partitioned, byte-budgeted key/value cache. All methods
// are safe for concurrent use by multiple goroutines. A key is always
// routed to exactly one shard (spec §4.3): no operation ever holds more
// than one shard's lock, and there are no multi-key transactions.
type Store struct {
	shards []*safeShard
}

// New constructs a Store. Construction fails if the per-shard byte budget
// (TotalBytes/Shards, integer division) falls outside [8, 1 MiB], matching
// the original source's StripedLockLRU bounds check.
func New(opt Options) (*Store, error) {
	if opt.TotalBytes <= 0 {
		return nil, fmt.Errorf("storage: TotalBytes must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	n := opt.Shards
	if n <= 0 {
		n = util.ReasonableShardCount()
	}
	if n <= 0 {
		n = 1
	}

	perShard := opt.TotalBytes / n
	if perShard < minShardBytes || perShard > maxShardBytes {
		return nil, fmt.Errorf("storage: per-shard budget %d out of range [%d, %d] (total=%d, shards=%d)",
			perShard, minShardBytes, maxShardBytes, opt.TotalBytes, n)
	}

	shards := make([]*safeShard, n)
	for i := range shards {
		shards[i] = newSafeShard(perShard, opt)
	}
	return &Store{shards: shards}, nil
}

// Put inserts or updates k->v, promoting it to MRU. Returns false only if
// the entry cannot fit even in an otherwise-empty shard.
func (st *Store) Put(k string, v []byte) bool {
	return st.shardFor(k).Put(k, v)
}

// PutIfAbsent inserts k->v only if k is not already present.
func (st *Store) PutIfAbsent(k string, v []byte) bool {
	return st.shardFor(k).PutIfAbsent(k, v)
}

// SetExisting updates k's value only if k is already present.
func (st *Store) SetExisting(k string, v []byte) bool {
	return st.shardFor(k).SetExisting(k, v)
}

// Get returns a copy of k's value and a presence flag, promoting the entry
// to MRU on hit.
func (st *Store) Get(k string) ([]byte, bool) {
	return st.shardFor(k).Get(k)
}

// Delete removes k if present.
func (st *Store) Delete(k string) bool {
	return st.shardFor(k).Delete(k)
}

// Len returns the total number of resident entries across all shards.
func (st *Store) Len() int {
	total := 0
	for _, s := range st.shards {
		total += s.Len()
	}
	return total
}

// Bytes returns the total resident byte count across all shards.
func (st *Store) Bytes() int64 {
	var total int64
	for _, s := range st.shards {
		total += int64(s.Bytes())
	}
	return total
}

// ShardCount returns the number of shards the store was constructed with.
func (st *Store) ShardCount() int { return len(st.shards) }

// shardFor routes a key to its shard by FNV-1a hash, matching the original
// source's hash(key) mod N (with a power-of-two fast path when applicable).
func (st *Store) shardFor(k string) *safeShard {
	h := util.Fnv64a(k)
	return st.shards[util.ShardIndex(h, len(st.shards))]
}
