package httpx

import (
	"context"
	"io"
	"net/url"
)

// Param is one captured path parameter.
type Param struct {
	Key   string
	Value string
}

// Params holds the path parameters captured by a Router, in pattern order.
type Params []Param

// Get returns the value captured for name.
func (ps Params) Get(name string) (string, bool) {
	for _, p := range ps {
		if p.Key == name {
			return p.Value, true
		}
	}
	return "", false
}

// Request represents an inbound HTTP request.
//
// Fields are a subset tailored for HTTP/1.1. Body is an io.ReadCloser and
// is never nil for server requests. ContentLength is -1 when unknown.
type Request struct {
	Method        string
	URL           *url.URL
	RequestURI    string
	Proto         string
	Header        Header
	Body          io.ReadCloser
	Host          string
	ContentLength int64
	RemoteAddr    string
	// Params are the path parameters captured by the Router that
	// dispatched this request.
	Params Params
	ctx    context.Context
	// RequestID is the server generated identifier for this request.
	RequestID string
	// CorrelationID is a propagated ID from the peer (X-Request-Id).
	CorrelationID string
	// TraceID is the W3C trace-id (32 hex), taken from traceparent or generated.
	TraceID string
	// SpanID is the span id (16 hex) the server generated for this request.
	SpanID string
	// ParentSpanID is the upstream span id, if parsed from traceparent.
	ParentSpanID string
	// TraceFlags are the traceparent flags (2 hex), "01" when generated.
	TraceFlags string
	// TraceState carries the normalized tracestate header, if any.
	TraceState string
}

// PathValue returns the path parameter name, or "" when it was not captured.
func (r *Request) PathValue(name string) string {
	v, _ := r.Params.Get(name)
	return v
}

// Context returns the request's context. For requests from a Server or
// Router.Request it carries the request identity and is canceled once the
// response is complete. If nil, returns Background.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed to ctx.
func WithContext(r *Request, ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	r2 := *r
	r2.ctx = ctx
	return &r2
}
