package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoParams(w ResponseWriter, r *Request) {
	var out string
	for _, p := range r.Params {
		out += p.Key + "=" + p.Value + ";"
	}
	w.Write([]byte(r.Method + " " + out))
}

func TestRouter_Captures(t *testing.T) {
	rt := NewRouter()
	rt.GET("/", echoParams)
	rt.GET("/:name", echoParams)
	rt.GET("/users/:id/posts/:post", echoParams)

	tests := []struct {
		target string
		status int
		body   string
	}{
		{"/", 200, "GET "},
		{"/Alice", 200, "GET name=Alice;"},
		{"/Alice?x=1", 200, "GET name=Alice;"},
		{"/J%C3%BCrgen", 200, "GET name=Jürgen;"},
		{"/a%2Fb", 200, "GET name=a/b;"},
		{"/%FF", 200, "GET name=%FF;"},
		{"/users/7/posts/9", 200, "GET id=7;post=9;"},
		{"/Alice/", 404, "not found"},
		{"//", 404, "not found"},
		{"/users/7/posts/", 404, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			res := rt.Request("GET", tt.target, nil)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.body, res.String())
		})
	}
}

func TestRouter_LiteralBeatsCapture(t *testing.T) {
	rt := NewRouter()
	rt.GET("/:name", echoParams)
	rt.GET("/health", func(w ResponseWriter, r *Request) { w.Write([]byte("ok")) })
	rt.GET("/:a/static", func(w ResponseWriter, r *Request) { w.Write([]byte("capture-first")) })
	rt.GET("/lit/:b", func(w ResponseWriter, r *Request) { w.Write([]byte("literal-first")) })

	assert.Equal(t, "ok", rt.Request("GET", "/health", nil).String())
	assert.Equal(t, "GET name=healthz;", rt.Request("GET", "/healthz", nil).String())
	// Left-most literal decides.
	assert.Equal(t, "literal-first", rt.Request("GET", "/lit/static", nil).String())
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rt := NewRouter()
	rt.GET("/:name", echoParams)
	rt.HandleFunc("PUT", "/:name", echoParams)

	res := rt.Request("POST", "/Alice", nil)
	assert.Equal(t, 405, res.StatusCode)
	assert.Equal(t, "GET, HEAD, PUT", res.Header.Get("Allow"))

	res = rt.Request("POST", "/a/b", nil)
	assert.Equal(t, 404, res.StatusCode)
}

func TestRouter_HeadFallsBackToGet(t *testing.T) {
	rt := NewRouter()
	rt.GET("/:name", echoParams)

	res := rt.Request("HEAD", "/Alice", nil)
	assert.Equal(t, 200, res.StatusCode)
	assert.Empty(t, res.Body)
	assert.Equal(t, "16", res.Header.Get("Content-Length")) // len("HEAD name=Alice;")
}

func TestRouter_CustomNotFound(t *testing.T) {
	rt := NewRouter()
	rt.NotFound = HandlerFunc(func(w ResponseWriter, r *Request) {
		w.WriteHeader(410)
	})
	assert.Equal(t, 410, rt.Request("GET", "/nothing", nil).StatusCode)
}

func TestRouter_RegistrationPanics(t *testing.T) {
	rt := NewRouter()
	rt.GET("/:name", echoParams)

	assert.Panics(t, func() { rt.GET("/:other", echoParams) }, "same shape")
	assert.Panics(t, func() { rt.GET("nope", echoParams) }, "missing slash")
	assert.Panics(t, func() { rt.GET("/:", echoParams) }, "unnamed capture")
	assert.Panics(t, func() { rt.GET("/:a/:a", echoParams) }, "duplicate capture")
	assert.Panics(t, func() { rt.Handle("get", "/x", HandlerFunc(echoParams)) }, "lower-case method")
	assert.Panics(t, func() { rt.Handle("GET", "/x", nil) }, "nil handler")
	assert.NotPanics(t, func() { rt.HandleFunc("POST", "/:other", echoParams) })
}

func TestRouter_Lookup(t *testing.T) {
	rt := NewRouter()
	rt.GET("/:name", echoParams)

	h, params, allow := rt.Lookup("GET", "/Bob")
	require.NotNil(t, h)
	assert.Equal(t, Params{{Key: "name", Value: "Bob"}}, params)
	assert.Nil(t, allow)

	h, _, allow = rt.Lookup("DELETE", "/Bob")
	assert.Nil(t, h)
	assert.Equal(t, []string{"GET", "HEAD"}, allow)

	h, _, allow = rt.Lookup("GET", "no-slash")
	assert.Nil(t, h)
	assert.Nil(t, allow)
}

func TestRouter_Routes(t *testing.T) {
	rt := NewRouter()
	rt.GET("/", echoParams)
	rt.HandleFunc("PUT", "/:name", echoParams)
	assert.Equal(t, []RouteInfo{{"GET", "/"}, {"PUT", "/:name"}}, rt.Routes())
}

func TestRouter_RequestIdentity(t *testing.T) {
	rt := NewRouter()
	rt.GET("/", func(w ResponseWriter, r *Request) {
		id, ok := RequestIDFrom(r.Context())
		if !ok || id != r.RequestID {
			w.WriteHeader(500)
			return
		}
		tr, ok := TraceFrom(r.Context())
		if !ok || tr.TraceID != r.TraceID || len(tr.SpanID) != 16 {
			w.WriteHeader(500)
			return
		}
		w.Write([]byte("ok"))
	})
	res := rt.Request("GET", "/", nil)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 400, rt.Request("GET", "not a uri", nil).StatusCode)
}

func TestRouter_RequestContextEndsWithResponse(t *testing.T) {
	rt := NewRouter()
	var ctx context.Context
	rt.GET("/", func(w ResponseWriter, r *Request) {
		ctx = r.Context()
		assert.NoError(t, ctx.Err())
	})
	rt.Request("GET", "/", nil)
	require.NotNil(t, ctx)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWithContext(t *testing.T) {
	type key struct{}
	r := &Request{Method: "GET"}
	r2 := WithContext(r, context.WithValue(context.Background(), key{}, "v"))
	assert.Equal(t, "v", r2.Context().Value(key{}))
	assert.Nil(t, r.Context().Value(key{}), "original request is unchanged")
	assert.Nil(t, WithContext(nil, context.Background()))
}

func TestParams_Get(t *testing.T) {
	ps := Params{{Key: "a", Value: "1"}, {Key: "b", Value: ""}}
	v, ok := ps.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	_, ok = ps.Get("c")
	assert.False(t, ok)

	r := &Request{Params: ps}
	assert.Equal(t, "1", r.PathValue("a"))
	assert.Equal(t, "", r.PathValue("missing"))
}
