package proxy

import (
	"net"
	"sync"
	"sync/atomic"
)

// connListener is a net.Listener over one already-accepted connection. It
// lets an http.Server serve a hijacked CONNECT tunnel.
type connListener struct {
	conn      net.Conn
	accepted  atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// newConnListener wraps conn in a listener that yields it exactly once.
func newConnListener(conn net.Conn) *connListener {
	return &connListener{
		conn: conn,
		done: make(chan struct{}),
	}
}

// Accept hands out the connection once, then blocks until Close.
func (l *connListener) Accept() (net.Conn, error) {
	if l.accepted.CompareAndSwap(false, true) {
		return l.conn, nil
	}
	<-l.done
	return nil, net.ErrClosed
}

// Close unblocks a pending Accept. The connection is left open.
func (l *connListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// Addr returns the local address of the wrapped connection.
func (l *connListener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}
