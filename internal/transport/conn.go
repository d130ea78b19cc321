// Package transport implements the worker-facing wire protocol: a TCP
// listener exchanging one JSON value per newline-terminated line in each
// direction. There is no framing beyond the newline, no handshake, and no
// version negotiation — this is the simplest framing the retrieval pack
// shows (the line-JSON pattern used for gazette's message.JSONFraming),
// trimmed further since this protocol only ever needs one message shape
// per direction, not a pluggable Framing abstraction.
package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
)

// DefaultPort is the TCP port the master listens on for worker connections
// when no override is configured.
const DefaultPort = 48484

// TransportError wraps any I/O or decode failure encountered while reading
// or writing a line on a Conn. Session treats every TransportError the same
// way regardless of cause: requeue the in-flight job, if any, and close.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Conn is a single worker connection: a net.Conn paired with a buffered
// reader so ReadLine can scan for '\n' without re-reading the socket on
// every call.
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
}

// NewConn wraps an already-accepted or already-dialed net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, reader: bufio.NewReader(nc)}
}

// WriteLine marshals v as JSON and writes it followed by a single '\n'.
func (c *Conn) WriteLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return &TransportError{Op: "marshal", Err: err}
	}
	b = append(b, '\n')
	if _, err := c.nc.Write(b); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadLine reads one '\n'-terminated line and unmarshals it as JSON into v.
// It has no timeout or context of its own: a session unblocks a pending
// ReadLine by closing the underlying Conn, per spec.md's "no timeouts at
// the core layer" stance — workers and sessions may impose their own above
// this layer.
func (c *Conn) ReadLine(v any) error {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	if err := json.Unmarshal(line, v); err != nil {
		return &TransportError{Op: "unmarshal", Err: err}
	}
	return nil
}

// Close closes the underlying connection, unblocking any in-progress
// ReadLine with an error.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the address of the connected worker.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}
