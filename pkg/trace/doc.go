// Package trace reconstructs outgoing HTTP request lifecycles from discrete
// events and emits them as records.
//
// An interception source observes real traffic and reports lifecycle events
// (Start, ResponseMeta, DataChunk, Finish) to an Engine. The Engine
// correlates events that belong to the same request, accumulates response
// bodies up to a configured cap, and emits a Record at three points: when a
// request starts, when response metadata arrives, and when the request
// finishes. Only the final record carries the response body.
//
// Records pass through an optional Hook that can rewrite or drop them before
// they reach the delivery Sink. The hook runs outside the engine's lock and
// may safely call Engine.Record again.
//
// Example usage:
//
//	engine := trace.NewEngine(trace.NewAccumulator(trace.DefaultBodyCap), sink)
//	engine.SetHook(func(r *trace.Record) *trace.Record {
//		if r.StatusCode < 400 {
//			return nil // only ship failures
//		}
//		return r
//	})
//
//	engine.Record(trace.Start{RequestID: "r1", Target: "https://api.example/v1", Method: "GET"})
package trace
