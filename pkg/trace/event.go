package trace

// Event is one observed moment in the life of a traced request.
//
// Events for the same request always arrive causally ordered: a Start, zero
// or more DataChunks, at most one ResponseMeta, and exactly one Finish.
// Events for distinct requests may interleave arbitrarily and may be reported
// from any goroutine.
type Event interface {
	// Key returns the correlation key that groups this event with the other
	// events of the same request: the request ID when the source supplies
	// one, otherwise the target URL. In the target-keyed fallback only one
	// in-flight request per target is representable.
	Key() string
}

// Start marks the beginning of an outgoing request.
type Start struct {
	// RequestID is the source-assigned request identifier. Leave empty for
	// sources that cannot distinguish concurrent requests; correlation then
	// falls back to the target URL.
	RequestID string

	// Target is the request URL.
	Target string

	// Method is the HTTP method.
	Method string

	// Headers are the outgoing request headers.
	Headers map[string]string

	// BodyPrefix holds the leading bytes of the request body, if the source
	// captured any.
	BodyPrefix []byte
}

// ResponseMeta reports that response status and headers arrived.
type ResponseMeta struct {
	RequestID  string
	Target     string
	StatusCode int
	Headers    map[string]string
}

// DataChunk carries a slice of response body bytes.
type DataChunk struct {
	RequestID string
	Target    string
	Bytes     []byte
}

// Finish marks the end of a request, whether or not a response was seen.
type Finish struct {
	RequestID string
	Target    string
}

func (e Start) Key() string        { return correlationKey(e.RequestID, e.Target) }
func (e ResponseMeta) Key() string { return correlationKey(e.RequestID, e.Target) }
func (e DataChunk) Key() string    { return correlationKey(e.RequestID, e.Target) }
func (e Finish) Key() string       { return correlationKey(e.RequestID, e.Target) }

func correlationKey(requestID, target string) string {
	if requestID != "" {
		return requestID
	}
	return target
}
