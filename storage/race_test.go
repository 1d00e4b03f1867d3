package storage

import (
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/Get/PutIfAbsent/SetExisting/Delete on
// random keys. Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	st, err := New(Options{TotalBytes: 1 << 16, Shards: 32})
	if err != nil {
		t.Fatal(err)
	}

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 5000
	deadline := time.Now().Add(300 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Delete
					st.Delete(k)
				case 5, 6, 7, 8, 9: // ~5% — PutIfAbsent
					st.PutIfAbsent(k, []byte("x"))
				case 10, 11, 12, 13, 14: // ~5% — SetExisting
					st.SetExisting(k, []byte("y"))
				case 15, 16, 17, 18, 19, 20, 21, 22, 23, 24: // ~10% — Put
					st.Put(k, []byte("z"))
				default: // ~75% — Get
					st.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}
