package trace

import (
	"time"

	"github.com/gingofthesouth/AppTrafficInspectorKit/internal/id"
)

// DefaultBodyCap is the default maximum number of body bytes retained per
// request, applied independently to the request body prefix and the
// accumulated response body.
const DefaultBodyCap = 64 * 1024

// entry is the in-flight state for one correlation key. It exists from Start
// to Finish, inclusive.
type entry struct {
	recordID        string
	target          string
	method          string
	requestHeaders  map[string]string
	requestBody     []byte
	statusCode      int
	responseHeaders map[string]string
	body            []byte // accumulated response body, capped
	startedAt       time.Time
}

// Accumulator maintains per-request state and answers whether there is
// enough information to emit a record. At most one entry exists per
// correlation key at any time.
//
// The accumulator is not safe for concurrent use; the Engine serializes all
// access to it. A request whose Finish never arrives leaks its entry.
type Accumulator struct {
	bodyCap int
	entries map[string]*entry
	now     func() time.Time
}

// NewAccumulator creates an accumulator that truncates bodies at bodyCap
// bytes. A bodyCap of zero or less selects DefaultBodyCap.
func NewAccumulator(bodyCap int) *Accumulator {
	if bodyCap <= 0 {
		bodyCap = DefaultBodyCap
	}
	return &Accumulator{
		bodyCap: bodyCap,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// OnStart creates the entry for key and returns the initial partial record,
// so "request began" is observable without waiting for a response. A stale
// entry already present under key is an orphaned predecessor and is replaced
// without emitting anything for it.
func (a *Accumulator) OnStart(key string, ev Start) *Record {
	e := &entry{
		recordID:       id.Record(),
		target:         ev.Target,
		method:         ev.Method,
		requestHeaders: copyHeaders(ev.Headers),
		requestBody:    capBytes(ev.BodyPrefix, a.bodyCap),
		startedAt:      a.now(),
	}
	a.entries[key] = e
	return a.snapshot(e, false)
}

// OnResponse records response metadata and returns an updated partial
// record, or nil when no entry exists for key (an orphan event, ignored).
func (a *Accumulator) OnResponse(key string, ev ResponseMeta) *Record {
	e, ok := a.entries[key]
	if !ok {
		return nil
	}
	e.statusCode = ev.StatusCode
	e.responseHeaders = copyHeaders(ev.Headers)
	return a.snapshot(e, false)
}

// OnData appends response body bytes up to the cap. Bytes beyond the cap are
// dropped silently: capping is expected, not exceptional. No record is
// emitted; accumulation stays invisible until Finish so the record rate does
// not scale with streamed chunk count.
func (a *Accumulator) OnData(key string, data []byte) {
	e, ok := a.entries[key]
	if !ok {
		return
	}
	room := a.bodyCap - len(e.body)
	if room <= 0 {
		return
	}
	if len(data) > room {
		data = data[:room]
	}
	e.body = append(e.body, data...)
}

// OnFinish removes the entry for key and returns the final record, with the
// accumulated response body and FinishedAt set. Returns nil when no entry
// exists: a duplicate or unmatched Finish is a no-op, not an error. A Finish
// with no prior response still emits a final record (the client may have
// cancelled) with no response headers and a zero status code.
func (a *Accumulator) OnFinish(key string) *Record {
	e, ok := a.entries[key]
	if !ok {
		return nil
	}
	delete(a.entries, key)
	return a.snapshot(e, true)
}

// InFlight returns the number of requests currently tracked.
func (a *Accumulator) InFlight() int { return len(a.entries) }

// snapshot builds an immutable record from e. Maps and byte slices are
// copied so later mutation of the entry cannot leak into an emitted record.
func (a *Accumulator) snapshot(e *entry, final bool) *Record {
	rec := &Record{
		RecordID:        e.recordID,
		Target:          e.target,
		Method:          e.method,
		RequestHeaders:  copyHeaders(e.requestHeaders),
		RequestBody:     copyBytes(e.requestBody),
		ResponseHeaders: copyHeaders(e.responseHeaders),
		StatusCode:      e.statusCode,
		StartedAt:       e.startedAt,
	}
	if final {
		rec.ResponseBody = copyBytes(e.body)
		finished := a.now()
		rec.FinishedAt = &finished
	}
	return rec
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func capBytes(b []byte, max int) []byte {
	if len(b) > max {
		b = b[:max]
	}
	return copyBytes(b)
}
