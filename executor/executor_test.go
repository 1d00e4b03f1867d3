package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		MaxQueue:      8,
		LowWatermark:  2,
		HighWatermark: 4,
		IdleTimeout:   30 * time.Millisecond,
	}
}

func waitForStats(t *testing.T, e *Executor, timeout time.Duration, pred func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var s Stats
	for time.Now().Before(deadline) {
		s = e.Stats()
		if pred(s) {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for predicate, last stats: %+v", s)
	return s
}

func TestExecutor_ExecuteRejectedBeforeStart(t *testing.T) {
	e := New(testOptions())
	if e.Execute(func() {}) {
		t.Fatal("Execute must reject before Start")
	}
}

func TestExecutor_BasicRun(t *testing.T) {
	e := New(testOptions())
	e.Start()
	defer e.Stop(true)

	var done int32
	var wg sync.WaitGroup
	wg.Add(1)
	ok := e.Execute(func() {
		atomic.AddInt32(&done, 1)
		wg.Done()
	})
	if !ok {
		t.Fatal("Execute must accept while Run")
	}
	wg.Wait()
	if atomic.LoadInt32(&done) != 1 {
		t.Fatal("task did not run")
	}
}

func TestExecutor_ScalesUpUnderBurst(t *testing.T) {
	opt := testOptions()
	e := New(opt)
	e.Start()
	defer e.Stop(true)

	release := make(chan struct{})
	var wg sync.WaitGroup
	// Enqueue more blocking tasks than LowWatermark, waiting for each to
	// start so that no worker is free when the next one is enqueued: the
	// pool then has to grow for every task past LowWatermark.
	for i := 0; i < opt.HighWatermark; i++ {
		wg.Add(1)
		started := make(chan struct{})
		if !e.Execute(func() {
			defer wg.Done()
			close(started)
			<-release
		}) {
			t.Fatal("Execute unexpectedly rejected")
		}
		<-started
	}

	waitForStats(t, e, time.Second, func(s Stats) bool {
		return s.Threads == opt.HighWatermark
	})

	close(release)
	wg.Wait()
}

func TestExecutor_NeverExceedsHighWatermark(t *testing.T) {
	opt := testOptions()
	opt.MaxQueue = 100
	e := New(opt)
	e.Start()
	defer e.Stop(true)

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < opt.MaxQueue; i++ {
		wg.Add(1)
		e.Execute(func() {
			defer wg.Done()
			<-release
		})
	}

	// Sample repeatedly; threads must never exceed HighWatermark.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if s := e.Stats(); s.Threads > opt.HighWatermark {
			t.Fatalf("threads %d exceeded high watermark %d", s.Threads, opt.HighWatermark)
		}
	}
	close(release)
	wg.Wait()
}

func TestExecutor_ReapsIdleWorkersToLowWatermark(t *testing.T) {
	opt := testOptions()
	e := New(opt)
	e.Start()
	defer e.Stop(true)

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < opt.HighWatermark; i++ {
		wg.Add(1)
		started := make(chan struct{})
		e.Execute(func() {
			defer wg.Done()
			close(started)
			<-release
		})
		<-started
	}
	waitForStats(t, e, time.Second, func(s Stats) bool { return s.Threads == opt.HighWatermark })
	close(release)
	wg.Wait()

	waitForStats(t, e, time.Second, func(s Stats) bool { return s.Threads == opt.LowWatermark })
}

func TestExecutor_QueueFullRejectsThenAcceptsAfterCompletion(t *testing.T) {
	opt := Options{MaxQueue: 1, LowWatermark: 1, HighWatermark: 1, IdleTimeout: 50 * time.Millisecond}
	e := New(opt)
	e.Start()
	defer e.Stop(true)

	block := make(chan struct{})
	started := make(chan struct{})
	if !e.Execute(func() {
		close(started)
		<-block
	}) {
		t.Fatal("first Execute must be accepted")
	}
	<-started

	if !e.Execute(func() {}) {
		t.Fatal("second Execute must fill the 1-deep queue")
	}
	if e.Execute(func() {}) {
		t.Fatal("third Execute must be rejected: queue and the single worker are both busy")
	}

	close(block)
	waitForStats(t, e, time.Second, func(s Stats) bool { return s.QueueLen == 0 })

	if !e.Execute(func() {}) {
		t.Fatal("Execute must succeed again once the queue drained")
	}
}

func TestExecutor_StopAwaitDrainsQueueAndWorkers(t *testing.T) {
	e := New(testOptions())
	e.Start()

	var ran int32
	for i := 0; i < 3; i++ {
		e.Execute(func() { atomic.AddInt32(&ran, 1) })
	}
	e.Stop(true)

	s := e.Stats()
	if s.State != Stopped || s.Threads != 0 || s.QueueLen != 0 {
		t.Fatalf("Stop(true) must leave threads=0 queue=0 state=Stopped, got %+v", s)
	}
	if atomic.LoadInt32(&ran) != 3 {
		t.Fatalf("expected 3 tasks drained before stop, got %d", ran)
	}
	if e.Execute(func() {}) {
		t.Fatal("Execute must reject once Stopped")
	}
}

func TestExecutor_StopIsIdempotent(t *testing.T) {
	e := New(testOptions())
	e.Start()
	e.Stop(true)
	e.Stop(true)
	e.Stop(false)
	if s := e.Stats(); s.State != Stopped {
		t.Fatalf("repeated Stop calls must stay Stopped, got %v", s.State)
	}
}

func TestExecutor_StopWithoutAwaitReturnsImmediately(t *testing.T) {
	e := New(testOptions())
	e.Start()

	release := make(chan struct{})
	e.Execute(func() { <-release })

	start := time.Now()
	e.Stop(false)
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("Stop(false) must return immediately, took %v", elapsed)
	}
	close(release)
	waitForStats(t, e, time.Second, func(s Stats) bool { return s.State == Stopped })
}

func TestExecutor_PanicInTaskDoesNotKillWorker(t *testing.T) {
	e := New(testOptions())
	e.Start()
	defer e.Stop(true)

	if !e.Execute(func() { panic("boom") }) {
		t.Fatal("Execute must accept")
	}

	var ok int32
	var wg sync.WaitGroup
	wg.Add(1)
	e.Execute(func() {
		atomic.StoreInt32(&ok, 1)
		wg.Done()
	})
	wg.Wait()
	if atomic.LoadInt32(&ok) != 1 {
		t.Fatal("worker must keep serving tasks after a panicking one")
	}
}
