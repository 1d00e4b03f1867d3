// Package executor implements an autoscaling worker pool: a bounded task
// queue served by a goroutine pool that grows toward a high watermark
// under burst load and reaps idle workers back down to a low watermark.
//
// State machine
//
//	Stopped --start()--> Run --stop(_)--> Stopping --last worker exits--> Stopped
//
// Execute enqueues a task and rejects (returns false) once the queue is
// full or the pool is not running — the caller observes backpressure
// directly instead of the queue growing without bound. Enqueuing may also
// grow the pool: if no worker is currently idle and the pool is below its
// high watermark, a new worker is spawned to pick up the task immediately.
//
// Idle workers self-reap: a worker that times out waiting for work and
// finds the pool above its low watermark exits; otherwise it keeps
// waiting. This keeps steady-state idle pools at the low watermark while
// letting bursts grow the pool up to the high watermark.
//
// Concurrency
//
// All state (queue, counters, state machine) is guarded by a single
// mutex, matching the contract that execution scaling decisions and
// worker bookkeeping observe a consistent snapshot. A task itself never
// runs while the mutex is held, so a slow task cannot stall Execute or a
// scaling decision.
package executor
