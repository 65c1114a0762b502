package httpx

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Router dispatches requests by method and path pattern.
//
// A pattern is a '/'-separated list of segments. A segment is either a
// literal or a capture written ":name", which matches exactly one non-empty
// path segment. "/" matches only the root path, and a trailing slash is
// significant: "/:name" matches "/Alice" but not "/Alice/".
//
// When several patterns match a path, literal segments win over captures,
// compared left to right; remaining ties go to the route registered first.
// HEAD requests fall back to GET routes. A path matched under another
// method gets 405 with an Allow header, anything else gets NotFound.
type Router struct {
	// NotFound handles requests no route matches. Nil replies 404.
	NotFound Handler

	mu     sync.RWMutex
	routes []*route
}

type route struct {
	method  string
	pattern string
	segs    []segment
	h       Handler
}

type segment struct {
	lit   string
	param string // non-empty for captures
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers h for method and pattern. It panics if the pattern is
// malformed or the method and pattern shape are already registered.
func (rt *Router) Handle(method, pattern string, h Handler) {
	if method == "" || strings.ToUpper(method) != method {
		panic(fmt.Sprintf("httpx: invalid method %q", method))
	}
	if h == nil {
		panic("httpx: nil handler for " + method + " " + pattern)
	}
	segs, err := parsePattern(pattern)
	if err != nil {
		panic(err.Error())
	}
	nr := &route{method: method, pattern: pattern, segs: segs, h: h}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, r := range rt.routes {
		if r.method == method && sameShape(r.segs, segs) {
			panic(fmt.Sprintf("httpx: %s %s conflicts with registered %s %s", method, pattern, r.method, r.pattern))
		}
	}
	rt.routes = append(rt.routes, nr)
}

// HandleFunc registers f for method and pattern.
func (rt *Router) HandleFunc(method, pattern string, f func(ResponseWriter, *Request)) {
	rt.Handle(method, pattern, HandlerFunc(f))
}

// GET registers f for GET (and therefore HEAD) requests on pattern.
func (rt *Router) GET(pattern string, f func(ResponseWriter, *Request)) {
	rt.HandleFunc("GET", pattern, f)
}

func (rt *Router) ServeHTTP(w ResponseWriter, r *Request) {
	path := "/"
	if r.URL != nil {
		path = r.URL.EscapedPath()
	}
	h, params, allow := rt.Lookup(r.Method, path)
	switch {
	case h != nil:
		r.Params = params
		h.ServeHTTP(w, r)
	case len(allow) > 0:
		w.Header().Set("Allow", strings.Join(allow, ", "))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(405)
		w.Write([]byte("method not allowed"))
	case rt.NotFound != nil:
		rt.NotFound.ServeHTTP(w, r)
	default:
		notFound(w, r)
	}
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method  string
	Pattern string
}

// Routes returns the registered routes in registration order.
func (rt *Router) Routes() []RouteInfo {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]RouteInfo, len(rt.routes))
	for i, r := range rt.routes {
		out[i] = RouteInfo{Method: r.method, Pattern: r.pattern}
	}
	return out
}

// Lookup resolves method and an escaped path. When no route handles the
// method but some route matches the path, h is nil and allow lists the
// methods that would, sorted.
func (rt *Router) Lookup(method, escapedPath string) (h Handler, params Params, allow []string) {
	parts, ok := splitPath(escapedPath)
	if !ok {
		return nil, nil, nil
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var best, bestGet *route
	methods := map[string]bool{}
	for _, r := range rt.routes {
		if !r.matches(parts) {
			continue
		}
		methods[r.method] = true
		if r.method == method && (best == nil || r.moreSpecific(best)) {
			best = r
		}
		if r.method == "GET" && (bestGet == nil || r.moreSpecific(bestGet)) {
			bestGet = r
		}
	}
	if best == nil && method == "HEAD" {
		best = bestGet
	}
	if best != nil {
		return best.h, best.capture(parts), nil
	}
	if len(methods) == 0 {
		return nil, nil, nil
	}
	if methods["GET"] {
		methods["HEAD"] = true
	}
	for m := range methods {
		allow = append(allow, m)
	}
	sort.Strings(allow)
	return nil, nil, allow
}

// Request dispatches an in-process request and records the response. The
// target is an origin-form request URI such as "/Alice?x=1".
func (rt *Router) Request(method, target string, header Header) *Response {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return &Response{StatusCode: 400, Header: Header{}}
	}
	if header == nil {
		header = Header{}
	}
	r := &Request{
		Method:     method,
		URL:        u,
		RequestURI: target,
		Proto:      "HTTP/1.1",
		Header:     header,
		Body:       emptyBody{},
		Host:       header.Get("Host"),
		RequestID:  newRequestID(),
		TraceID:    genTraceID(),
		SpanID:     genSpanID(),
		TraceFlags: "01",
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r = WithContext(r, requestContext(ctx, r))
	rec := NewRecorder()
	rt.ServeHTTP(rec, r)
	res := rec.Result()
	if method == "HEAD" {
		res.Body = nil
	}
	return res
}

func (r *route) matches(parts []string) bool {
	if len(parts) != len(r.segs) {
		return false
	}
	for i, s := range r.segs {
		if s.param != "" {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if s.lit != parts[i] {
			return false
		}
	}
	return true
}

// moreSpecific reports whether r beats o at the first segment where one is
// a literal and the other a capture. Both must match the same path.
func (r *route) moreSpecific(o *route) bool {
	for i := range r.segs {
		a, b := r.segs[i].param == "", o.segs[i].param == ""
		if a != b {
			return a
		}
	}
	return false
}

func (r *route) capture(parts []string) Params {
	var ps Params
	for i, s := range r.segs {
		if s.param != "" {
			ps = append(ps, Param{Key: s.param, Value: parts[i]})
		}
	}
	return ps
}

func parsePattern(pattern string) ([]segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("httpx: pattern %q must begin with '/'", pattern)
	}
	if pattern == "/" {
		return nil, nil
	}
	seen := map[string]bool{}
	var segs []segment
	for _, p := range strings.Split(pattern[1:], "/") {
		if !strings.HasPrefix(p, ":") {
			segs = append(segs, segment{lit: p})
			continue
		}
		name := p[1:]
		if name == "" {
			return nil, fmt.Errorf("httpx: pattern %q has an unnamed capture", pattern)
		}
		if seen[name] {
			return nil, fmt.Errorf("httpx: pattern %q captures %q twice", pattern, name)
		}
		seen[name] = true
		segs = append(segs, segment{param: name})
	}
	return segs, nil
}

// splitPath splits an escaped path into decoded segments. A segment that is
// not valid percent-encoding is kept as sent.
func splitPath(escaped string) ([]string, bool) {
	if !strings.HasPrefix(escaped, "/") {
		return nil, false
	}
	if escaped == "/" {
		return nil, true
	}
	parts := strings.Split(escaped[1:], "/")
	for i, p := range parts {
		if d, err := url.PathUnescape(p); err == nil && utf8.ValidString(d) {
			parts[i] = d
		}
	}
	return parts, true
}

func sameShape(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if (a[i].param == "") != (b[i].param == "") || a[i].lit != b[i].lit {
			return false
		}
	}
	return true
}

func notFound(w ResponseWriter, _ *Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(404)
	w.Write([]byte("not found"))
}
