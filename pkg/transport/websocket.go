package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/logging"
)

// Reconnect backoff bounds.
const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// WebSocket is a delivery transport over an outbound WebSocket connection.
// It reconnects with exponential backoff when the connection drops and
// reports readiness transitions to registered callbacks, which is what lets
// the delivery channel flush its backlog after a receiver comes back.
type WebSocket struct {
	url string
	log *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	onReady    []func()
	done       chan struct{}
	ready      atomic.Bool
	closed     atomic.Bool
	reconnects atomic.Int32
}

// DialWebSocket connects to url and starts the connection monitor.
// The returned transport is ready immediately.
func DialWebSocket(ctx context.Context, url string, log *slog.Logger) (*WebSocket, error) {
	if log == nil {
		log = logging.Nop()
	}
	t := &WebSocket{
		url:  url,
		log:  log,
		done: make(chan struct{}),
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Identity returns the dial URL; one receiver endpoint, one identity.
func (t *WebSocket) Identity() string { return t.url }

// Ready reports whether the connection is currently established.
func (t *WebSocket) Ready() bool { return t.ready.Load() }

// OnReady registers fn to run on every not-ready to ready transition.
func (t *WebSocket) OnReady(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.onReady = append(t.onReady, fn)
	t.mu.Unlock()
}

// Send writes one frame as a binary message. Fire-and-forget: an error
// means the frame is lost and the monitor will handle the reconnect.
func (t *WebSocket) Send(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageBinary, frame)
}

// Close shuts the transport down permanently. No reconnect follows.
func (t *WebSocket) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	close(t.done)
	t.ready.Store(false)

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "transport closed")
	}
}

// Reconnects returns how many times the transport re-established the
// connection.
func (t *WebSocket) Reconnects() int { return int(t.reconnects.Load()) }

func (t *WebSocket) connect(ctx context.Context) error {
	conn, resp, err := websocket.Dial(ctx, t.url, nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.ready.Store(true)
	t.fireReady()

	go t.readPump(conn)
	return nil
}

// readPump drains incoming messages to detect connection loss. The receiver
// sends nothing meaningful today; a read error is the disconnect signal.
func (t *WebSocket) readPump(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	t.ready.Store(false)
	if t.closed.Load() {
		return
	}
	t.log.Warn("connection lost", "url", t.url)
	go t.reconnectLoop()
}

func (t *WebSocket) reconnectLoop() {
	delay := initialReconnectDelay
	for {
		select {
		case <-t.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := t.connect(ctx)
		cancel()
		if err == nil {
			t.reconnects.Add(1)
			t.log.Info("reconnected", "url", t.url)
			return
		}

		t.log.Debug("reconnect failed", "url", t.url, "error", err)
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (t *WebSocket) fireReady() {
	t.mu.Lock()
	callbacks := make([]func(), len(t.onReady))
	copy(callbacks, t.onReady)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
