package storage

import (
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestStore_ConstructionBounds(t *testing.T) {
	if _, err := New(Options{TotalBytes: 0}); err == nil {
		t.Fatal("TotalBytes<=0 must fail construction")
	}
	if _, err := New(Options{TotalBytes: 4, Shards: 1}); err == nil {
		t.Fatal("per-shard budget below 8 bytes must fail construction")
	}
	if _, err := New(Options{TotalBytes: (1 << 20) * 2, Shards: 1}); err == nil {
		t.Fatal("per-shard budget above 1 MiB must fail construction")
	}
	if _, err := New(Options{TotalBytes: 1024, Shards: 4}); err != nil {
		t.Fatalf("reasonable construction must succeed: %v", err)
	}
}

func TestStore_BasicOps(t *testing.T) {
	st, err := New(Options{TotalBytes: 1024, Shards: 4})
	if err != nil {
		t.Fatal(err)
	}

	if !st.Put("a", []byte("1")) {
		t.Fatal("Put must succeed")
	}
	if v, ok := st.Get("a"); !ok || string(v) != "1" {
		t.Fatalf("Get want 1, got %q ok=%v", v, ok)
	}
	if !st.Delete("a") {
		t.Fatal("Delete must succeed")
	}
	if _, ok := st.Get("a"); ok {
		t.Fatal("a must be absent after Delete")
	}
}

// S4 from spec: each key is routed to exactly one shard, and the sum of
// per-shard resident bytes equals the total live-entry bytes.
func TestStore_StripedRouting(t *testing.T) {
	st, err := New(Options{TotalBytes: 32 * 4, Shards: 4})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%d", i)
		st.Put(k, []byte("v"))
	}

	var sumBytes int64
	for _, s := range st.shards {
		sumBytes += int64(s.Bytes())
	}
	if sumBytes != st.Bytes() {
		t.Fatalf("sum of per-shard bytes %d != Store.Bytes() %d", sumBytes, st.Bytes())
	}

	// Each key always hashes to the same shard across repeated lookups.
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%d", i)
		first := st.shardFor(k)
		for j := 0; j < 5; j++ {
			if st.shardFor(k) != first {
				t.Fatalf("key %q routed to different shards across calls", k)
			}
		}
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	st, err := New(Options{TotalBytes: 1 << 16, Shards: 16})
	if err != nil {
		t.Fatal(err)
	}

	var eg errgroup.Group
	workers := 32
	for w := 0; w < workers; w++ {
		id := w
		eg.Go(func() error {
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("k%d:%d", id, i%20)
				st.Put(k, []byte("value"))
				st.Get(k)
				if i%7 == 0 {
					st.Delete(k)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	if st.Bytes() > int64(16*(1<<16/16)) {
		// Sanity: shouldn't grossly exceed what per-shard budgets allow.
		t.Fatalf("total bytes %d implausibly large", st.Bytes())
	}
}
