package delivery

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/wire"
)

// fakeTransport is a controllable in-memory Transport.
type fakeTransport struct {
	identity string

	mu      sync.Mutex
	ready   bool
	sent    [][]byte
	failing bool
	onReady []func()
}

func newFakeTransport(identity string) *fakeTransport {
	return &fakeTransport{identity: identity}
}

func (f *fakeTransport) Identity() string { return f.identity }

func (f *fakeTransport) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) OnReady(fn func()) {
	f.mu.Lock()
	f.onReady = append(f.onReady, fn)
	f.mu.Unlock()
}

// setReady flips readiness and fires callbacks on the false-to-true edge,
// like a reconnecting transport would.
func (f *fakeTransport) setReady(ready bool) {
	f.mu.Lock()
	wasReady := f.ready
	f.ready = ready
	callbacks := make([]func(), len(f.onReady))
	copy(callbacks, f.onReady)
	f.mu.Unlock()

	if ready && !wasReady {
		for _, fn := range callbacks {
			fn()
		}
	}
}

func (f *fakeTransport) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func record(n int) *trace.Record {
	return &trace.Record{
		RecordID: fmt.Sprintf("rec-%03d", n),
		Target:   "https://api.example/items",
		Method:   "GET",
	}
}

// decodeSent reassembles records from the raw frames a transport received.
func decodeSent(t *testing.T, frames [][]byte) []*trace.Record {
	t.Helper()
	var dec wire.Decoder
	var recs []*trace.Record
	for _, frame := range frames {
		for _, payload := range dec.Append(frame) {
			rec, err := trace.DecodeRecord(payload)
			if err != nil {
				t.Fatalf("sent frame does not decode: %v", err)
			}
			recs = append(recs, rec)
		}
	}
	return recs
}

func TestChannel_FlushNoOpWhenDetached(t *testing.T) {
	ch := NewChannel(4, nil)
	ch.Enqueue(record(1))
	ch.Flush()

	if ch.Depth() != 1 {
		t.Errorf("depth = %d, want 1 (nothing to flush to)", ch.Depth())
	}
}

func TestChannel_AttachNotReadyProducesZeroSends(t *testing.T) {
	ch := NewChannel(8, nil)
	for i := 0; i < 3; i++ {
		ch.Enqueue(record(i))
	}

	tr := newFakeTransport("peer-1")
	ch.Attach(tr)

	if got := len(tr.frames()); got != 0 {
		t.Errorf("%d frames sent while not ready, want 0", got)
	}
	if ch.Depth() != 3 {
		t.Errorf("depth = %d, want 3", ch.Depth())
	}
}

func TestChannel_ReadyTransitionFlushesBacklogInOrder(t *testing.T) {
	const n = 5
	ch := NewChannel(8, nil)
	for i := 0; i < n; i++ {
		ch.Enqueue(record(i))
	}

	tr := newFakeTransport("peer-1")
	ch.Attach(tr)
	tr.setReady(true) // no re-enqueue needed

	recs := decodeSent(t, tr.frames())
	if len(recs) != n {
		t.Fatalf("got %d records, want %d", len(recs), n)
	}
	for i, rec := range recs {
		if want := fmt.Sprintf("rec-%03d", i); rec.RecordID != want {
			t.Errorf("position %d: record %s, want %s", i, rec.RecordID, want)
		}
	}
}

func TestChannel_EvictsOldestWhenFull(t *testing.T) {
	const k = 4
	ch := NewChannel(k, nil)
	for i := 0; i < k+1; i++ {
		ch.Enqueue(record(i))
	}

	tr := newFakeTransport("peer-1")
	tr.setReady(true)
	ch.Attach(tr)

	recs := decodeSent(t, tr.frames())
	if len(recs) != k {
		t.Fatalf("got %d records, want last %d", len(recs), k)
	}
	for i, rec := range recs {
		if want := fmt.Sprintf("rec-%03d", i+1); rec.RecordID != want {
			t.Errorf("position %d: record %s, want %s (oldest evicted)", i, rec.RecordID, want)
		}
	}
	if got := ch.Stats().Evicted; got != 1 {
		t.Errorf("evicted = %d, want 1", got)
	}
}

func TestChannel_EnqueueSendsImmediatelyWhenReady(t *testing.T) {
	ch := NewChannel(8, nil)
	tr := newFakeTransport("peer-1")
	tr.setReady(true)
	ch.Attach(tr)

	ch.Enqueue(record(1))

	if got := len(tr.frames()); got != 1 {
		t.Errorf("%d frames sent, want 1", got)
	}
	if ch.Depth() != 0 {
		t.Errorf("depth = %d, want 0", ch.Depth())
	}
}

func TestChannel_AttachSameIdentityIsNoOp(t *testing.T) {
	ch := NewChannel(8, nil)
	first := newFakeTransport("peer-1")
	first.setReady(true)
	ch.Attach(first)

	imposter := newFakeTransport("peer-1")
	imposter.setReady(true)
	ch.Attach(imposter)

	ch.Enqueue(record(1))

	if got := len(first.frames()); got != 1 {
		t.Errorf("original handle got %d frames, want 1", got)
	}
	if got := len(imposter.frames()); got != 0 {
		t.Errorf("duplicate-identity handle got %d frames, want 0", got)
	}
}

func TestChannel_DetachKeepsQueueAndAllowsReattach(t *testing.T) {
	ch := NewChannel(8, nil)
	first := newFakeTransport("peer-1")
	ch.Attach(first)

	ch.Enqueue(record(1))
	ch.Enqueue(record(2))
	ch.Detach()

	if ch.Depth() != 2 {
		t.Fatalf("depth = %d after detach, want 2", ch.Depth())
	}

	// Same identity after a detach is a genuinely new connection.
	second := newFakeTransport("peer-1")
	second.setReady(true)
	ch.Attach(second)

	recs := decodeSent(t, second.frames())
	if len(recs) != 2 {
		t.Errorf("reattached handle got %d records, want 2", len(recs))
	}
}

func TestChannel_DifferentIdentityReplacesHandle(t *testing.T) {
	ch := NewChannel(8, nil)
	first := newFakeTransport("peer-1")
	first.setReady(true)
	ch.Attach(first)

	second := newFakeTransport("peer-2")
	second.setReady(true)
	ch.Attach(second)

	ch.Enqueue(record(1))

	if got := len(first.frames()); got != 0 {
		t.Errorf("replaced handle got %d frames, want 0", got)
	}
	if got := len(second.frames()); got != 1 {
		t.Errorf("new handle got %d frames, want 1", got)
	}
}

func TestChannel_SendFailureIsBestEffort(t *testing.T) {
	ch := NewChannel(8, nil)
	tr := newFakeTransport("peer-1")
	tr.setReady(true)
	tr.failing = true
	ch.Attach(tr)

	ch.Enqueue(record(1))

	stats := ch.Stats()
	if stats.SendFailures != 1 {
		t.Errorf("sendFailures = %d, want 1", stats.SendFailures)
	}
	if ch.Depth() != 0 {
		t.Errorf("failed frame must not be retried, depth = %d", ch.Depth())
	}
}

// failingEncoder always refuses a record.
type failingEncoder struct{}

func (failingEncoder) Encode(*trace.Record) ([]byte, error) {
	return nil, errors.New("malformed record")
}

func TestChannel_EncodeFailureDropsOneRecord(t *testing.T) {
	ch := NewChannel(8, failingEncoder{})
	ch.Enqueue(record(1))

	if ch.Depth() != 0 {
		t.Errorf("undecodable record must not be queued, depth = %d", ch.Depth())
	}
	if got := ch.Stats().EncodeDrops; got != 1 {
		t.Errorf("encodeDrops = %d, want 1", got)
	}
}

func TestChannel_ConcurrentEnqueue(t *testing.T) {
	ch := NewChannel(1024, nil)
	tr := newFakeTransport("peer-1")
	tr.setReady(true)
	ch.Attach(tr)

	const producers = 8
	const each = 25

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				ch.Enqueue(record(p*each + i))
			}
		}(p)
	}
	wg.Wait()
	ch.Flush()

	if got := len(tr.frames()); got != producers*each {
		t.Errorf("sent %d frames, want %d", got, producers*each)
	}
}
