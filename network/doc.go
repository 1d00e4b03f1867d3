// Package network implements the connection state machine and reactor
// that sit in front of a Storage: per-socket read/parse/execute/write
// with backpressure (Conn), and an accept loop dispatching each
// connection either to its own goroutine or, in threaded mode, to a
// bounded worker pool (Reactor).
//
// The original implementation this is translated from drives a raw
// epoll loop and hands EPOLLIN/EPOLLOUT readiness events to Connection
// callbacks. Go's net package already multiplexes socket readiness
// through the runtime's netpoller, so Conn keeps the original buffer,
// parser-feeding, and output-queue algorithm verbatim but drives it from
// blocking Read/Write calls inside a per-connection goroutine instead of
// from epoll_wait. See the module's DESIGN.md for that decision.
//
// Backpressure (spec S6): once the output queue grows past maxQueue
// entries, Conn stops issuing new Read calls until a Write drains the
// queue back at or under the threshold — the same condition the
// original expresses by toggling EPOLLIN on the epoll event mask.
package network
