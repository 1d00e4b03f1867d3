//go:build go1.18

package storage

import (
	"strings"
	"testing"
)

// Fuzz basic Put/Get/Delete semantics under arbitrary string inputs.
// Guards against panics and checks round-trip invariants hold.
func FuzzStore_PutGetDelete(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 10
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		st, err := New(Options{TotalBytes: 1 << 14, Shards: 4})
		if err != nil {
			t.Fatal(err)
		}

		st.Put(k, []byte(v))
		got, ok := st.Get(k)
		if !ok || string(got) != v {
			t.Fatalf("after Put/Get: want %q, got %q ok=%v", v, got, ok)
		}

		if ok := st.PutIfAbsent(k, []byte("other")); ok {
			t.Fatalf("PutIfAbsent on a present key returned true")
		}
		if got2, ok := st.Get(k); !ok || string(got2) != v {
			t.Fatalf("after duplicate PutIfAbsent: want %q, got %q ok=%v", v, got2, ok)
		}

		if !st.Delete(k) {
			t.Fatalf("Delete must return true once")
		}
		if _, ok := st.Get(k); ok {
			t.Fatalf("key must be absent after Delete")
		}
		if !st.PutIfAbsent(k, []byte(v)) {
			t.Fatalf("PutIfAbsent after Delete must succeed")
		}
	})
}
