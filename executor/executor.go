package executor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is one of the executor's three lifecycle states.
type State int32

const (
	// Stopped — no workers running; Execute always rejects.
	Stopped State = iota
	// Run — fully operational; tasks may be enqueued and executed.
	Run
	// Stopping — draining: no new tasks accepted, existing ones complete.
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Run:
		return "run"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Options configures an Executor. All fields must be positive.
type Options struct {
	// MaxQueue bounds the number of tasks waiting for a worker.
	MaxQueue int
	// LowWatermark is the steady-state worker count the pool reaps down to.
	LowWatermark int
	// HighWatermark is the worker count a burst may grow the pool to.
	HighWatermark int
	// IdleTimeout is how long an idle worker waits before considering reaping.
	IdleTimeout time.Duration
	// Logger receives panic-recovery messages; a zero value discards them.
	Logger zerolog.Logger
}

// Executor is an autoscaling worker pool with a bounded task queue. See
// the package doc for the state machine and scaling rules. All methods
// are safe for concurrent use.
type Executor struct {
	mu    sync.Mutex
	state State
	queue []func()

	threads     int
	freeThreads int

	opt    Options
	logger zerolog.Logger

	empty   *broadcaster
	stopped *broadcaster
}

// New constructs an Executor in the Stopped state. Call Start to begin
// accepting work. A zero-value Options.Logger is a valid no-op logger.
func New(opt Options) *Executor {
	return &Executor{
		opt:     opt,
		logger:  opt.Logger,
		empty:   newBroadcaster(),
		stopped: newBroadcaster(),
	}
}

// Start transitions Stopped -> Run, spawning LowWatermark workers. It is a
// no-op if the pool is not Stopped.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Stopped {
		return
	}
	e.state = Run
	e.threads = e.opt.LowWatermark
	e.freeThreads = e.opt.LowWatermark
	for i := 0; i < e.opt.LowWatermark; i++ {
		go e.workerLoop()
	}
}

// Stop signals the pool to stop: no new tasks are accepted, but workers
// drain the existing queue before exiting. If await is true, Stop blocks
// until every worker has exited and the state is Stopped. Stop is
// idempotent.
func (e *Executor) Stop(await bool) {
	e.mu.Lock()
	if e.state == Stopped {
		e.mu.Unlock()
		return
	}
	e.state = Stopping
	if e.threads > 0 {
		e.empty.broadcastLocked()
	} else {
		e.state = Stopped
		e.stopped.broadcastLocked()
	}

	if !await {
		e.mu.Unlock()
		return
	}
	for e.state != Stopped {
		ch := e.stopped.snapshot()
		e.mu.Unlock()
		<-ch
		e.mu.Lock()
	}
	e.mu.Unlock()
}

// Execute enqueues task for execution and returns true, or returns false
// without side effects if the pool is not Run or the queue is full.
//
// Enqueuing may spawn a new worker (if none are idle and the pool is
// below HighWatermark) or wake the idle workers (if the queue was empty
// before this push); otherwise no wake happens and an already-busy
// worker will observe the new task on its next loop iteration. The wake
// is a broadcast: every idle worker wakes, one of them takes the task,
// and the others find the queue empty and go back to waiting.
func (e *Executor) Execute(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Run || len(e.queue) == e.opt.MaxQueue {
		return false
	}

	wasEmpty := len(e.queue) == 0
	e.queue = append(e.queue, task)

	switch {
	case e.freeThreads == 0 && e.threads < e.opt.HighWatermark:
		e.threads++
		e.freeThreads++
		go e.workerLoop()
	case wasEmpty:
		e.empty.broadcastLocked()
	}
	return true
}

// Stats is a point-in-time snapshot of pool counters, useful for tests and
// metrics export.
type Stats struct {
	State       State
	Threads     int
	FreeThreads int
	QueueLen    int
}

// Stats returns a snapshot of the current pool state.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		State:       e.state,
		Threads:     e.threads,
		FreeThreads: e.freeThreads,
		QueueLen:    len(e.queue),
	}
}

// workerLoop is the body every pool goroutine runs. It is spawned with
// freeThreads already incremented by the caller (Start or Execute).
func (e *Executor) workerLoop() {
	e.mu.Lock()
	idleSince := time.Now()

	for {
		if len(e.queue) > 0 {
			task := e.queue[0]
			e.queue = e.queue[1:]
			e.freeThreads--
			e.mu.Unlock()

			e.runTaskSafely(task)

			e.mu.Lock()
			e.freeThreads++
			idleSince = time.Now()
			continue
		}

		if e.state == Stopping {
			break
		}

		deadline := idleSince.Add(e.opt.IdleTimeout)
		if e.waitLocked(deadline) {
			// Timed out: reap only if above the low watermark, otherwise
			// keep waiting with a freshly reset idle clock.
			if e.threads > e.opt.LowWatermark {
				break
			}
			idleSince = time.Now()
		}
	}

	e.threads--
	e.freeThreads--
	if e.threads == 0 && e.state == Stopping {
		e.state = Stopped
		e.stopped.broadcastLocked()
	}
	e.mu.Unlock()
}

// waitLocked blocks until either the empty-condition is broadcast or
// deadline passes, returning true on timeout. Must be called with e.mu
// held; returns with e.mu held again.
func (e *Executor) waitLocked(deadline time.Time) (timedOut bool) {
	ch := e.empty.snapshot()
	e.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-ch:
		e.mu.Lock()
		return false
	case <-timer.C:
		e.mu.Lock()
		return true
	}
}

// runTaskSafely executes task, recovering from a panic so that one bad
// task never takes down a worker or propagates to unrelated callers.
func (e *Executor) runTaskSafely(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("executor: task panicked, recovered")
		}
	}()
	task()
}
