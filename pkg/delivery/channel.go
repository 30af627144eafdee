package delivery

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/logging"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/wire"
)

// DefaultQueueCapacity is the default bound on buffered frames.
const DefaultQueueCapacity = 256

// Transport is a send-capable duplex channel to a receiver, e.g. an
// already-connected socket. The channel treats sends as fire-and-forget:
// a Send error means the frame is lost, not retried.
type Transport interface {
	// Identity returns a stable comparable identity for the peer behind
	// this handle. Attach uses it to suppress duplicate attachments.
	Identity() string

	// Ready reports whether the handle can accept sends right now.
	Ready() bool

	// Send hands one frame to the transport.
	Send(frame []byte) error

	// OnReady registers a callback invoked whenever the handle transitions
	// to ready, such as after a reconnect.
	OnReady(fn func())
}

// Channel owns the pending-frame queue and the current transport handle.
// At most one handle is live at a time. Implements trace.Sink.
type Channel struct {
	mu       sync.Mutex
	enc      trace.Encoder
	queue    [][]byte
	capacity int
	tr       Transport
	identity string // identity of the attached handle, "" when detached
	log      *slog.Logger

	enqueued     atomic.Int64
	evicted      atomic.Int64
	sentFrames   atomic.Int64
	sendFailures atomic.Int64
	encodeDrops  atomic.Int64
}

// NewChannel creates a delivery channel holding at most capacity frames.
// A capacity of zero or less selects DefaultQueueCapacity; a nil encoder
// selects trace.JSONEncoder.
func NewChannel(capacity int, enc trace.Encoder) *Channel {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if enc == nil {
		enc = trace.JSONEncoder{}
	}
	return &Channel{
		enc:      enc,
		capacity: capacity,
		log:      logging.Nop(),
	}
}

// SetLogger sets the operational logger for the channel.
func (c *Channel) SetLogger(log *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if log != nil {
		c.log = log
	} else {
		c.log = logging.Nop()
	}
}

// Attach installs a transport handle. Attaching the identity that is already
// attached is a no-op; any other identity replaces the current handle. The
// pending queue is kept either way, and the handle's readiness callback is
// registered so a later reconnect flushes automatically.
func (c *Channel) Attach(t Transport) {
	if t == nil {
		return
	}
	c.mu.Lock()
	if c.tr != nil && c.identity == t.Identity() {
		c.mu.Unlock()
		return
	}
	c.tr = t
	c.identity = t.Identity()
	log := c.log
	c.mu.Unlock()

	log.Info("transport attached", "peer", t.Identity())

	// Registered outside the lock: some transports fire the callback
	// synchronously when already ready.
	t.OnReady(c.Flush)
	c.Flush()
}

// Detach drops the current handle without discarding the pending queue.
// Frames already handed to the old handle are not retried. The identity
// guard resets, so a later Attach to the same peer installs a genuinely new
// connection; this is how the channel recovers after a receiver restart.
func (c *Channel) Detach() {
	c.mu.Lock()
	peer := c.identity
	c.tr = nil
	c.identity = ""
	log := c.log
	c.mu.Unlock()

	if peer != "" {
		log.Info("transport detached", "peer", peer)
	}
}

// Enqueue encodes rec, frames it, and appends it to the queue, evicting the
// oldest frame first when the queue is full: under sustained backpressure
// recency wins over completeness. A record that fails to encode is dropped
// with a diagnostic; later records are unaffected.
func (c *Channel) Enqueue(rec *trace.Record) {
	payload, err := c.enc.Encode(rec)
	if err != nil {
		c.encodeDrops.Add(1)
		c.mu.Lock()
		log := c.log
		c.mu.Unlock()
		log.Warn("record dropped: encode failed", "error", err)
		return
	}
	frame := wire.Encode(payload)

	c.mu.Lock()
	if len(c.queue) >= c.capacity {
		c.queue = c.queue[1:]
		c.evicted.Add(1)
	}
	c.queue = append(c.queue, frame)
	c.enqueued.Add(1)
	c.flushLocked()
	c.mu.Unlock()
}

// Flush sends queued frames in FIFO order until the queue empties or the
// handle stops being ready. A no-op when detached or not ready.
func (c *Channel) Flush() {
	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()
}

// flushLocked drains the queue while the handle accepts sends. The lock is
// held across sends to preserve frame order; Transport.Send must not call
// back into the channel.
func (c *Channel) flushLocked() {
	for c.tr != nil && c.tr.Ready() && len(c.queue) > 0 {
		frame := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.tr.Send(frame); err != nil {
			// Best-effort: the frame is gone either way.
			c.sendFailures.Add(1)
			c.log.Warn("frame send failed", "peer", c.identity, "error", err)
			continue
		}
		c.sentFrames.Add(1)
	}
	if len(c.queue) == 0 {
		c.queue = nil
	}
}

// Depth returns the number of frames currently buffered.
func (c *Channel) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Attached reports whether a transport handle is currently installed.
func (c *Channel) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr != nil
}

// Stats is a point-in-time snapshot of channel counters.
type Stats struct {
	Enqueued     int64
	Evicted      int64
	SentFrames   int64
	SendFailures int64
	EncodeDrops  int64
	Depth        int
}

// Stats returns a snapshot of the channel's counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Enqueued:     c.enqueued.Load(),
		Evicted:      c.evicted.Load(),
		SentFrames:   c.sentFrames.Load(),
		SendFailures: c.sendFailures.Load(),
		EncodeDrops:  c.encodeDrops.Load(),
		Depth:        c.Depth(),
	}
}

var _ trace.Sink = (*Channel)(nil)
