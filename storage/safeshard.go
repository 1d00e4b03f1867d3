package storage

import (
	"sync"

	"github.com/afinago/kvsrv/internal/util"
)

// safeShard wraps an lruShard with a single exclusive lock held for the
// duration of every operation. No operation suspends while holding it, so
// fairness is not a concern (spec §4.2): any standard mutex will do.
type safeShard struct {
	mu  sync.Mutex
	lru *lruShard

	opt Options

	// Hot counters, padded to their own cache lines (teacher's
	// internal/util convention) since every shard operation touches one.
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newSafeShard(maxBytes int, opt Options) *safeShard {
	s := &safeShard{lru: newLRUShard(maxBytes), opt: opt}
	s.lru.onEvict = func(k string, v []byte) {
		s.evicts.Add(1)
		s.opt.Metrics.Evict(EvictLRU)
		if s.opt.OnEvict != nil {
			s.opt.OnEvict(k, v, EvictLRU)
		}
	}
	return s
}

func (s *safeShard) Put(k string, v []byte) bool {
	s.mu.Lock()
	ok := s.lru.put(k, v)
	s.reportSizeLocked()
	s.mu.Unlock()
	return ok
}

func (s *safeShard) PutIfAbsent(k string, v []byte) bool {
	s.mu.Lock()
	ok := s.lru.putIfAbsent(k, v)
	s.reportSizeLocked()
	s.mu.Unlock()
	return ok
}

func (s *safeShard) SetExisting(k string, v []byte) bool {
	s.mu.Lock()
	ok := s.lru.setExisting(k, v)
	s.reportSizeLocked()
	s.mu.Unlock()
	return ok
}

func (s *safeShard) Get(k string) ([]byte, bool) {
	s.mu.Lock()
	v, ok := s.lru.get(k)
	if ok {
		s.hits.Add(1)
		s.opt.Metrics.Hit()
	} else {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
	}
	s.mu.Unlock()
	return v, ok
}

func (s *safeShard) Delete(k string) bool {
	s.mu.Lock()
	ok := s.lru.delete(k)
	s.reportSizeLocked()
	s.mu.Unlock()
	return ok
}

// Len returns the number of resident entries in this shard.
func (s *safeShard) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.len
}

// Bytes returns the current resident byte total for this shard.
func (s *safeShard) Bytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.curBytes
}

func (s *safeShard) reportSizeLocked() {
	s.opt.Metrics.Size(s.lru.len, int64(s.lru.curBytes))
}
