package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotConnected is returned by Send when the underlying connection is gone.
var ErrNotConnected = errors.New("transport: not connected")

// TCP is a delivery transport over a single plain TCP connection. It does
// not reconnect; when the connection fails the transport goes permanently
// not-ready and the caller decides whether to dial a replacement and attach
// it (the delivery channel keeps its queue across that swap).
type TCP struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	onReady []func()
	ready   atomic.Bool
}

// DialTCP connects to addr. The returned transport is ready immediately.
func DialTCP(addr string, timeout time.Duration) (*TCP, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	t := &TCP{addr: addr, conn: conn}
	t.ready.Store(true)
	return t, nil
}

// Identity returns the dial address.
func (t *TCP) Identity() string { return t.addr }

// Ready reports whether the connection is usable.
func (t *TCP) Ready() bool { return t.ready.Load() }

// OnReady registers fn. A TCP transport is born ready and never becomes
// ready again after a failure, so fn only matters when registration races
// Attach; the delivery channel flushes on attach regardless.
func (t *TCP) OnReady(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.onReady = append(t.onReady, fn)
	t.mu.Unlock()
}

// Send writes one frame to the connection. The first write error marks the
// transport not-ready for good.
func (t *TCP) Send(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(frame); err != nil {
		t.ready.Store(false)
		return err
	}
	return nil
}

// Close tears the connection down.
func (t *TCP) Close() {
	t.ready.Store(false)
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
