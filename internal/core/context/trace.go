// Package context carries request-scoped trace values across the HTTP layer,
// the repositories and the background mirror tasks a request starts.
package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies the request a unit of work belongs to.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
	// Route is the matched gin route ("/api/medicines/:id"), empty outside HTTP.
	Route string
}

type traceKey struct{}

// WithTrace stores tc in ctx.
func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, tc)
}

// GetTrace returns the TraceContext of ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceKey{}).(*TraceContext)
	return tc
}

// GetRequestID returns the request id of ctx or "".
func GetRequestID(ctx context.Context) string {
	if tc := GetTrace(ctx); tc != nil {
		return tc.RequestID
	}
	return ""
}

// FromSpan builds a TraceContext for a request. Ids of sc win when a tracer
// provider is installed; the no-op provider yields an invalid span context
// and fresh ids are generated instead. Empty traceID and requestID mean the
// caller sent none.
func FromSpan(sc trace.SpanContext, traceID, requestID string) *TraceContext {
	tc := &TraceContext{TraceID: traceID, RequestID: requestID}
	if tc.RequestID == "" {
		tc.RequestID = uuid.NewString()
	}
	if tc.TraceID == "" {
		if sc.HasTraceID() {
			tc.TraceID = sc.TraceID().String()
		} else {
			tc.TraceID = uuid.NewString()
		}
	}
	if sc.HasSpanID() {
		tc.SpanID = sc.SpanID().String()
	} else {
		tc.SpanID = uuid.NewString()[:16]
	}
	return tc
}

// LogFields returns the key/value pairs loggers attach for tc.
func (tc *TraceContext) LogFields() []any {
	fields := []any{"trace_id", tc.TraceID, "request_id", tc.RequestID}
	if tc.Route != "" {
		fields = append(fields, "route", tc.Route)
	}
	return fields
}

// Detach returns a context that keeps the values of ctx but is not cancelled
// with it. Mirror tasks started by a request outlive its response.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
