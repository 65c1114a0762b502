package httpx

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyCorrelationID
	ctxKeyTrace
)

// WithRequestID returns a new context that carries a request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFrom extracts the request ID from ctx.
func RequestIDFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyRequestID).(string)
	return s, ok && s != ""
}

// WithCorrelationID returns a new context that carries a correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// CorrelationIDFrom extracts the correlation ID from ctx.
func CorrelationIDFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyCorrelationID).(string)
	return s, ok && s != ""
}

// WithTrace stores trace context in ctx.
func WithTrace(ctx context.Context, tr Trace) context.Context {
	return context.WithValue(ctx, ctxKeyTrace, tr)
}

// TraceFrom extracts trace context from ctx.
func TraceFrom(ctx context.Context) (Trace, bool) {
	tr, ok := ctx.Value(ctxKeyTrace).(Trace)
	return tr, ok
}

// requestContext derives the context handed to handlers: parent plus the
// identifiers the server assigned to r.
func requestContext(parent context.Context, r *Request) context.Context {
	ctx := WithRequestID(parent, r.RequestID)
	if r.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, r.CorrelationID)
	}
	return WithTrace(ctx, Trace{
		TraceID:      r.TraceID,
		SpanID:       r.SpanID,
		ParentSpanID: r.ParentSpanID,
		Flags:        r.TraceFlags,
		State:        r.TraceState,
	})
}
