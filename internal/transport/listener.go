package transport

import (
	"fmt"
	"net"
)

// Listener accepts worker connections on a single TCP address, handing
// each one back wrapped as a Conn.
type Listener struct {
	nl net.Listener
}

// Listen binds host:port and returns a Listener ready to Accept. Passing
// port 0 lets the OS choose a free port, which Addr then reports — used by
// tests that need a loopback address without a fixed port.
func Listen(host string, port int) (*Listener, error) {
	nl, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return &Listener{nl: nl}, nil
}

// Accept blocks until a worker connects, or the Listener is closed, in
// which case it returns the net.Listener's own closed-listener error.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.nl.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// Close stops accepting new connections. It does not affect connections
// already accepted.
func (l *Listener) Close() error {
	return l.nl.Close()
}

// Addr returns the address the Listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

// Dial connects to a listener at addr and wraps the resulting connection.
// Used by worker-side test fixtures and the admin client, both of which
// speak the same line-JSON style against a different listener.
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return NewConn(nc), nil
}
