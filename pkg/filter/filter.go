// Package filter builds record hooks from expr-lang expressions.
//
// An expression evaluates to a boolean against one record; true keeps the
// record, false drops it. The expression environment exposes:
//
//	method          string  HTTP method
//	target          string  request URL
//	statusCode      int     response status, 0 when none observed
//	final           bool    true for the final record of a request
//	requestHeaders  map[string]string
//	responseHeaders map[string]string
//
// Example: `statusCode >= 400 || method == "POST"`.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
)

// New compiles expression into a trace.Hook. Compilation errors surface
// immediately; evaluation errors at runtime fail open (the record is sent),
// keeping the availability bias of the rest of the pipeline.
func New(expression string) (trace.Hook, error) {
	program, err := expr.Compile(expression, expr.Env(environment(&trace.Record{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expression, err)
	}

	return func(rec *trace.Record) *trace.Record {
		out, err := expr.Run(program, environment(rec))
		if err != nil {
			return rec
		}
		if keep, ok := out.(bool); ok && !keep {
			return nil
		}
		return rec
	}, nil
}

func environment(rec *trace.Record) map[string]interface{} {
	return map[string]interface{}{
		"method":          rec.Method,
		"target":          rec.Target,
		"statusCode":      rec.StatusCode,
		"final":           rec.Final(),
		"requestHeaders":  headersOrEmpty(rec.RequestHeaders),
		"responseHeaders": headersOrEmpty(rec.ResponseHeaders),
	}
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}
