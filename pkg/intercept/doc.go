// Package intercept adapts net/http clients into a lifecycle event source.
//
// RoundTripper wraps any http.RoundTripper and reports Start, ResponseMeta,
// DataChunk, and Finish events to a trace.Engine as the request executes.
// The response body is observed transparently while the caller reads it, so
// interception never buffers a body the application would not have read.
package intercept
