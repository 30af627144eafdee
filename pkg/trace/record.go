package trace

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the reconstructed snapshot of a request at a point in its
// lifecycle. Records emitted before Finish are partial: they carry no
// response body and no FinishedAt, and exist so an observer can see a request
// begin before it completes. Every record emitted for one request carries the
// same RecordID so receivers can merge partials into the final record.
type Record struct {
	// RecordID is minted once at Start and reused for every emission.
	RecordID string `json:"recordId"`

	// Target is the request URL.
	Target string `json:"target"`

	// Method is the HTTP method.
	Method string `json:"method"`

	// RequestHeaders are the outgoing request headers.
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`

	// RequestBody holds captured request body bytes, truncated at the
	// accumulator's cap.
	RequestBody []byte `json:"requestBody,omitempty"`

	// ResponseHeaders are set once response metadata was observed.
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`

	// ResponseBody is populated only on the final record.
	ResponseBody []byte `json:"responseBody,omitempty"`

	// StatusCode is the response status, or 0 if no response was observed
	// (for example when the client cancelled the request).
	StatusCode int `json:"statusCode,omitempty"`

	// StartedAt is when the request started.
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt is set only on the final record.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Final reports whether this is the final record for its request.
func (r *Record) Final() bool { return r.FinishedAt != nil }

// Sink receives records that were accepted for delivery.
type Sink interface {
	Enqueue(rec *Record)
}

// Encoder turns a record into self-contained bytes for transmission.
type Encoder interface {
	Encode(rec *Record) ([]byte, error)
}

// JSONEncoder encodes records as JSON documents. Byte fields are base64 per
// encoding/json convention.
type JSONEncoder struct{}

// Encode implements Encoder.
func (JSONEncoder) Encode(rec *Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.RecordID, err)
	}
	return data, nil
}

// DecodeRecord parses a JSON-encoded record, the inverse of JSONEncoder.
func DecodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
