package intercept

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gingofthesouth/AppTrafficInspectorKit/internal/id"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
)

// bodyPrefixLimit bounds how much of an outgoing request body is captured
// for the Start event. The accumulator applies its own cap on top.
const bodyPrefixLimit = 4 * 1024

// RoundTripper reports request lifecycle events to an engine while
// delegating the actual transport to the wrapped RoundTripper.
type RoundTripper struct {
	next   http.RoundTripper
	engine *trace.Engine
}

// NewRoundTripper wraps next (http.DefaultTransport when nil) so every
// request flowing through it is traced by engine.
func NewRoundTripper(next http.RoundTripper, engine *trace.Engine) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{next: next, engine: engine}
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := id.Short()
	target := req.URL.String()

	rt.engine.Record(trace.Start{
		RequestID:  requestID,
		Target:     target,
		Method:     req.Method,
		Headers:    flattenHeader(req.Header),
		BodyPrefix: requestBodyPrefix(req),
	})

	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		// No response will ever arrive; close the lifecycle out so the
		// accumulator entry does not leak.
		rt.engine.Record(trace.Finish{RequestID: requestID, Target: target})
		return nil, err
	}

	rt.engine.Record(trace.ResponseMeta{
		RequestID:  requestID,
		Target:     target,
		StatusCode: resp.StatusCode,
		Headers:    flattenHeader(resp.Header),
	})

	resp.Body = &observedBody{
		rc:        resp.Body,
		engine:    rt.engine,
		requestID: requestID,
		target:    target,
	}
	return resp, nil
}

// observedBody passes reads through while reporting the bytes as DataChunk
// events. Finish fires once, at EOF or Close, whichever comes first.
type observedBody struct {
	rc        io.ReadCloser
	engine    *trace.Engine
	requestID string
	target    string
	finish    sync.Once
}

func (b *observedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, p[:n])
		b.engine.Record(trace.DataChunk{RequestID: b.requestID, Target: b.target, Bytes: chunk})
	}
	if err == io.EOF {
		b.emitFinish()
	}
	return n, err
}

func (b *observedBody) Close() error {
	err := b.rc.Close()
	b.emitFinish()
	return err
}

func (b *observedBody) emitFinish() {
	b.finish.Do(func() {
		b.engine.Record(trace.Finish{RequestID: b.requestID, Target: b.target})
	})
}

// requestBodyPrefix captures up to bodyPrefixLimit bytes of the outgoing
// body without consuming it, via GetBody. Requests without a replayable
// body are captured header-only.
func requestBodyPrefix(req *http.Request) []byte {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer func() { _ = body.Close() }()

	prefix, err := io.ReadAll(io.LimitReader(body, bodyPrefixLimit))
	if err != nil || len(prefix) == 0 {
		return nil
	}
	return prefix
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
