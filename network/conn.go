package network

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

const (
	readBufSize = 4096
	defaultMaxQ = 64
	crlf        = "\r\n"
	crlfLen     = len(crlf)
)

// errOversizedCommand is returned when a command cannot be parsed even
// once the full read buffer is occupied by it.
var errOversizedCommand = errors.New("network: command exceeds read buffer")

// Conn is a single socket's read/parse/execute/write state machine (spec
// C5). It is driven by repeated calls to DoRead/DoWrite from Serve and is
// not safe for concurrent use from more than one goroutine at a time,
// except for the running flag and the output queue, which are guarded by
// mu so OnError/OnClose can be invoked from outside the serving
// goroutine (e.g. a Reactor-wide shutdown).
type Conn struct {
	raw      net.Conn
	logger   zerolog.Logger
	storage  Storage
	parser   Parser
	maxQueue int

	buf [readBufSize]byte
	pos int

	pendingCmd   Command
	argRemaining int
	argument     []byte

	mu         sync.Mutex
	running    bool
	outQueue   [][]byte
	offset     int
	readPaused bool
}

// NewConn wraps raw in a Connection state machine. parser must be freshly
// constructed (Reset, no partial state).
func NewConn(raw net.Conn, storage Storage, parser Parser, maxQueue int, logger zerolog.Logger) *Conn {
	if maxQueue <= 0 {
		maxQueue = defaultMaxQ
	}
	return &Conn{
		raw:      raw,
		logger:   logger,
		storage:  storage,
		parser:   parser,
		maxQueue: maxQueue,
	}
}

// Serve runs the connection's read/parse/execute/write loop until the
// peer closes, an error occurs, or the connection is stopped. It blocks
// until the connection is done and always closes the underlying socket
// before returning.
func (c *Conn) Serve() {
	c.start()
	defer c.raw.Close()

	for {
		if !c.isAlive() {
			return
		}

		if c.isReadPaused() {
			// Backpressure: the output queue is over maxQueue. Drain it
			// before accepting more input, mirroring the original's
			// EPOLLIN deassertion while EPOLLOUT is pending.
			if err := c.doWrite(); err != nil {
				c.onError(err)
				return
			}
			continue
		}

		if c.pos == len(c.buf) {
			// Buffer is full and the parser still hasn't produced a
			// complete command: unlike a blocking read() of length 0 on
			// the original's fd (which returns 0 and reads as a closed
			// connection), net.Conn.Read with an empty slice returns
			// immediately without blocking, so looping here would spin
			// the CPU instead. Treat it as the same fatal condition.
			c.onError(errOversizedCommand)
			return
		}

		n, err := c.raw.Read(c.buf[c.pos:])
		if n > 0 {
			if err := c.doRead(n); err != nil {
				c.onError(err)
				return
			}
			if err := c.doWrite(); err != nil {
				c.onError(err)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.onClose()
			} else {
				c.onError(err)
			}
			return
		}
	}
}

// Stop marks the connection for shutdown; the serving goroutine observes
// it on its next loop iteration and unwinds after closing the socket.
func (c *Conn) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.raw.Close()
}

func (c *Conn) start() {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	c.logger.Debug().Str("remote", c.raw.RemoteAddr().String()).Msg("connection started")
}

func (c *Conn) isAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Conn) isReadPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readPaused
}

func (c *Conn) onError(err error) {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logger.Error().Err(err).Str("remote", c.raw.RemoteAddr().String()).Msg("connection error")
}

func (c *Conn) onClose() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logger.Debug().Str("remote", c.raw.RemoteAddr().String()).Msg("connection closed")
}

// doRead processes n freshly-read bytes at c.buf[c.pos:c.pos+n] (spec
// §4.5): feed the parser until it can't make progress, fill a pending
// command's argument, execute completed commands, and compact the
// buffer as bytes are consumed. consumed == 0 from the parser means "not
// enough data for a full command yet" and the inner loop must stop to
// avoid spinning on the same bytes forever.
func (c *Conn) doRead(n int) error {
	c.pos += n

	for c.pos > 0 {
		if c.pendingCmd == nil {
			consumed, ready, argLen := c.parser.Parse(c.buf[:c.pos], c.pos)
			if ready {
				c.pendingCmd = c.parser.Build()
				c.argRemaining = argLen
				if argLen > 0 {
					c.argRemaining += crlfLen
				}
			}
			if consumed == 0 {
				break
			}
			copy(c.buf[:], c.buf[consumed:c.pos])
			c.pos -= consumed
		}

		if c.pendingCmd != nil && c.argRemaining > 0 {
			toRead := c.argRemaining
			if toRead > c.pos {
				toRead = c.pos
			}
			c.argument = append(c.argument, c.buf[:toRead]...)
			copy(c.buf[:], c.buf[toRead:c.pos])
			c.pos -= toRead
			c.argRemaining -= toRead
		}

		if c.pendingCmd != nil && c.argRemaining == 0 {
			arg := c.argument
			if len(arg) >= crlfLen {
				arg = arg[:len(arg)-crlfLen]
			}
			result := c.pendingCmd.Execute(c.storage, arg)
			c.enqueue(append(result, crlf...))

			c.pendingCmd = nil
			c.argument = nil
			c.parser.Reset()
		}
	}
	return nil
}

// enqueue appends a response to the output queue, pausing further reads
// once the queue grows past maxQueue (spec S6 backpressure).
func (c *Conn) enqueue(resp []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outQueue = append(c.outQueue, resp)
	if len(c.outQueue) > c.maxQueue {
		c.readPaused = true
	}
}

// doWrite hands the whole output queue to one vectored write (net.Buffers
// maps to writev on platforms that support it); the batch is not capped
// at maxQueue entries. It then drops the fully written responses, keeps
// the offset into a partially written one, and resumes reads once the
// queue is at or under maxQueue.
func (c *Conn) doWrite() error {
	c.mu.Lock()
	if len(c.outQueue) == 0 {
		c.mu.Unlock()
		return nil
	}

	bufs := make(net.Buffers, len(c.outQueue))
	bufs[0] = c.outQueue[0][c.offset:]
	for i := 1; i < len(c.outQueue); i++ {
		bufs[i] = c.outQueue[i]
	}
	c.mu.Unlock()

	written, err := bufs.WriteTo(c.raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := written
	i := 0
	for i < len(c.outQueue) {
		entryLen := int64(len(c.outQueue[i])) - int64(c.offset)
		if remaining < entryLen {
			break
		}
		remaining -= entryLen
		c.offset = 0
		i++
	}
	c.outQueue = c.outQueue[i:]
	if remaining > 0 && len(c.outQueue) > 0 {
		c.offset = int(remaining)
	}
	if len(c.outQueue) <= c.maxQueue {
		c.readPaused = false
	}
	return nil
}
