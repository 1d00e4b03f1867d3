package network

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/afinago/kvsrv/executor"
)

// ParserFactory builds a fresh Parser for each accepted connection —
// Parser is stateful, so one instance cannot be shared across sockets.
type ParserFactory func() Parser

// ReactorOptions configures a Reactor (spec C6).
type ReactorOptions struct {
	// Storage backs every Command executed on every connection.
	Storage Storage
	// NewParser constructs a Parser for a newly accepted connection.
	NewParser ParserFactory
	// MaxQueue bounds each connection's output queue before backpressure
	// kicks in (spec S6). Defaults to 64.
	MaxQueue int
	// Executor, if non-nil, runs each connection's Serve loop as a pool
	// task instead of a freestanding goroutine — this is the "threaded"
	// deployment (spec §4.6): total concurrent connections is bounded by
	// the executor's high watermark, and Execute's own queue/rejection
	// behavior becomes the accept-side backpressure. A nil Executor
	// spawns one goroutine per connection with no such bound, matching
	// the single-threaded reactor.
	Executor *executor.Executor
	Logger   zerolog.Logger
}

// Reactor accepts connections on a listener and dispatches each to its
// own Conn state machine (spec C6). It has two deployment shapes,
// selected purely by whether an Executor is supplied: single-threaded
// (one goroutine per connection, unbounded) or threaded (connections run
// as executor tasks, bounded by the pool's watermarks).
type Reactor struct {
	opt ReactorOptions

	mu       sync.Mutex
	ln       net.Listener
	conns    map[*Conn]struct{}
	shutdown bool
}

// NewReactor constructs a Reactor. Storage and NewParser must be set.
func NewReactor(opt ReactorOptions) (*Reactor, error) {
	if opt.Storage == nil {
		return nil, errors.New("network: ReactorOptions.Storage is required")
	}
	if opt.NewParser == nil {
		return nil, errors.New("network: ReactorOptions.NewParser is required")
	}
	if opt.MaxQueue <= 0 {
		opt.MaxQueue = defaultMaxQ
	}
	return &Reactor{opt: opt, conns: make(map[*Conn]struct{})}, nil
}

// Serve accepts connections on ln until it is closed or Shutdown is
// called. It always returns a non-nil error (one wrapping net.ErrClosed
// after a clean Shutdown).
func (r *Reactor) Serve(ln net.Listener) error {
	r.mu.Lock()
	r.ln = ln
	r.mu.Unlock()

	for {
		raw, err := ln.Accept()
		if err != nil {
			r.mu.Lock()
			down := r.shutdown
			r.mu.Unlock()
			if down {
				return fmt.Errorf("network: reactor stopped: %w", err)
			}
			return err
		}
		r.dispatch(raw)
	}
}

func (r *Reactor) dispatch(raw net.Conn) {
	conn := NewConn(raw, r.opt.Storage, r.opt.NewParser(), r.opt.MaxQueue, r.opt.Logger)

	r.mu.Lock()
	r.conns[conn] = struct{}{}
	r.mu.Unlock()

	run := func() {
		conn.Serve()
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
	}

	if r.opt.Executor != nil {
		if !r.opt.Executor.Execute(run) {
			r.opt.Logger.Warn().Msg("reactor: executor at capacity, rejecting connection")
			raw.Close()
			r.mu.Lock()
			delete(r.conns, conn)
			r.mu.Unlock()
		}
		return
	}
	go run()
}

// Shutdown stops accepting new connections and forcibly closes every
// live connection. It does not wait for in-flight commands to finish
// executing.
func (r *Reactor) Shutdown() error {
	r.mu.Lock()
	r.shutdown = true
	ln := r.ln
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		c.Stop()
	}
	return err
}

// ActiveConns returns the number of connections currently being served.
func (r *Reactor) ActiveConns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
