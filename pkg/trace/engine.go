package trace

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/logging"
)

// Hook inspects a record before it is handed to the sink. Returning a record
// (the same one or a modified copy) means "send this"; returning nil drops
// the record and increments the engine's dropped counter.
//
// The hook runs outside the engine's lock, after the state change for the
// triggering event has been committed, so it may call Engine.Record again
// without deadlocking. It must not assume atomicity between its invocation
// and events arriving concurrently from other goroutines.
type Hook func(rec *Record) *Record

// Engine is the single entry point for lifecycle events. It serializes
// accumulator access, runs the hook pipeline on every emitted record, and
// forwards accepted records to the sink.
type Engine struct {
	mu   sync.Mutex
	acc  *Accumulator
	hook Hook
	sink Sink
	log  *slog.Logger

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewEngine creates an engine that feeds accepted records to sink. A nil
// accumulator gets defaults; a nil sink discards records (useful in tests).
func NewEngine(acc *Accumulator, sink Sink) *Engine {
	if acc == nil {
		acc = NewAccumulator(DefaultBodyCap)
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{
		acc:  acc,
		sink: sink,
		log:  logging.Nop(),
	}
}

// SetLogger sets the operational logger for the engine.
func (e *Engine) SetLogger(log *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if log != nil {
		e.log = log
	} else {
		e.log = logging.Nop()
	}
}

// SetHook installs the record hook. Passing nil removes it; with no hook
// installed every record is sent unmodified. The engine holds only the
// function value and never extends the lifetime of whatever state the hook
// closes over beyond the hook registration itself.
func (e *Engine) SetHook(h Hook) {
	e.mu.Lock()
	e.hook = h
	e.mu.Unlock()
}

// Record routes one lifecycle event. Safe to call from any goroutine, any
// number of times. Events with no matching entry (orphan response, data for
// an unknown key, duplicate finish) are ignored.
func (e *Engine) Record(ev Event) {
	if ev == nil {
		return
	}
	key := ev.Key()

	// Mutate and snapshot under the lock, then release before invoking the
	// hook so a re-entrant Record call cannot self-deadlock. A nested call
	// reaches the sink independently, ordered by completion.
	e.mu.Lock()
	var rec *Record
	switch ev := ev.(type) {
	case Start:
		rec = e.acc.OnStart(key, ev)
	case ResponseMeta:
		rec = e.acc.OnResponse(key, ev)
	case DataChunk:
		e.acc.OnData(key, ev.Bytes)
	case Finish:
		rec = e.acc.OnFinish(key)
	default:
		e.log.Warn("unknown lifecycle event", "type", fmt.Sprintf("%T", ev))
	}
	hook := e.hook
	log := e.log
	e.mu.Unlock()

	if rec == nil {
		return
	}

	if hook != nil {
		rec = hook(rec)
		if rec == nil {
			e.dropped.Add(1)
			return
		}
	}

	e.sent.Add(1)
	log.Debug("record emitted", "recordId", rec.RecordID, "target", rec.Target, "final", rec.Final())
	e.sink.Enqueue(rec)
}

// Sent returns the number of records that reached the sink.
func (e *Engine) Sent() int64 { return e.sent.Load() }

// Dropped returns the number of records suppressed by the hook.
func (e *Engine) Dropped() int64 { return e.dropped.Load() }

// InFlight returns the number of requests currently being tracked.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.InFlight()
}

type nopSink struct{}

func (nopSink) Enqueue(*Record) {}
