// Package wire is a minimal line-oriented command set and parser for the
// network package's Command/Parser collaborator interfaces. The wire
// protocol itself is explicitly out of scope for the cache core (spec
// treats Command/Parser as opaque), so this package exists only to give
// the server and its tests something concrete to speak: a small
// memcached-flavored subset (GET/SET/ADD/DELETE) over the same
// "header line, optional length-prefixed argument plus trailing CRLF"
// framing the Connection state machine assumes.
package wire

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/afinago/kvsrv/network"
)

type op int

const (
	opGet op = iota
	opSet
	opAdd
	opDelete
	opUnknown
)

type command struct {
	op  op
	key string
}

// Execute implements network.Command.
func (c *command) Execute(st network.Storage, argument []byte) []byte {
	switch c.op {
	case opGet:
		v, ok := st.Get(c.key)
		if !ok {
			return []byte("NOT_FOUND")
		}
		return append([]byte("VALUE "), v...)
	case opSet:
		st.Put(c.key, cloneArg(argument))
		return []byte("STORED")
	case opAdd:
		if st.PutIfAbsent(c.key, cloneArg(argument)) {
			return []byte("STORED")
		}
		return []byte("NOT_STORED")
	case opDelete:
		if st.Delete(c.key) {
			return []byte("DELETED")
		}
		return []byte("NOT_FOUND")
	default:
		return []byte("ERROR unknown command")
	}
}

func cloneArg(argument []byte) []byte {
	out := make([]byte, len(argument))
	copy(out, argument)
	return out
}

// Parser implements network.Parser for the wire protocol. A Parser must
// not be shared across connections; construct one per connection with
// NewParser.
type Parser struct {
	pending *command
}

// NewParser returns a network.ParserFactory-compatible constructor.
func NewParser() network.Parser {
	return &Parser{}
}

// Parse implements network.Parser.
func (p *Parser) Parse(buf []byte, n int) (consumed int, ready bool, argLen int) {
	idx := bytes.IndexByte(buf[:n], '\n')
	if idx < 0 {
		return 0, false, 0
	}
	consumed = idx + 1
	line := strings.TrimRight(string(buf[:idx]), "\r")
	fields := strings.Fields(line)

	if len(fields) == 0 {
		// Blank line: consume it, no command produced.
		return consumed, false, 0
	}

	switch strings.ToUpper(fields[0]) {
	case "GET":
		if len(fields) != 2 {
			p.pending = &command{op: opUnknown}
			return consumed, true, 0
		}
		p.pending = &command{op: opGet, key: fields[1]}
		return consumed, true, 0

	case "DELETE", "DEL":
		if len(fields) != 2 {
			p.pending = &command{op: opUnknown}
			return consumed, true, 0
		}
		p.pending = &command{op: opDelete, key: fields[1]}
		return consumed, true, 0

	case "SET", "ADD":
		if len(fields) != 3 {
			p.pending = &command{op: opUnknown}
			return consumed, true, 0
		}
		argBytes, err := strconv.Atoi(fields[2])
		if err != nil || argBytes < 0 {
			p.pending = &command{op: opUnknown}
			return consumed, true, 0
		}
		o := opSet
		if strings.ToUpper(fields[0]) == "ADD" {
			o = opAdd
		}
		p.pending = &command{op: o, key: fields[1]}
		return consumed, true, argBytes

	default:
		p.pending = &command{op: opUnknown}
		return consumed, true, 0
	}
}

// Build implements network.Parser.
func (p *Parser) Build() network.Command {
	return p.pending
}

// Reset implements network.Parser.
func (p *Parser) Reset() {
	p.pending = nil
}
