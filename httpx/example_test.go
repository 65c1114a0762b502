package httpx_test

import (
	"context"
	"fmt"

	"dqx0.com/go/greeter/httpx"
)

// ExampleHeader shows that header names are canonicalized on every access.
func ExampleHeader() {
	h := httpx.Header{}
	h.Add("accept-language", "fr")
	h.Add("Accept-Language", "en;q=0.5")
	c := h.Clone()
	c.Set("ACCEPT-LANGUAGE", "de")
	fmt.Println(h.Values("Accept-Language"))
	fmt.Println(c.Get("accept-language"))
	// Output:
	// [fr en;q=0.5]
	// de
}

// ExampleTraceStateBuilder updates a vendor entry, which moves it to the front.
func ExampleTraceStateBuilder() {
	b := httpx.NewTraceStateBuilder("vendor1=abc")
	b.Set("vendor2", "xyz")
	b.Set("vendor1", "def") // moves to front
	fmt.Println(b.String())
	// Output:
	// vendor1=def,vendor2=xyz
}

// ExampleWithTrace stores trace context for downstream calls.
func ExampleWithTrace() {
	tr := httpx.Trace{TraceID: "0123456789abcdef0123456789abcdef", SpanID: "0123456789abcdef", Flags: "01"}
	ctx := httpx.WithTrace(context.Background(), tr)
	got, ok := httpx.TraceFrom(ctx)
	fmt.Println(ok && got.TraceID == tr.TraceID)
	fmt.Println(got.Traceparent())
	// Output:
	// true
	// 00-0123456789abcdef0123456789abcdef-0123456789abcdef-01
}

// ExampleRouter dispatches requests in-process, without a socket.
func ExampleRouter() {
	rt := httpx.NewRouter()
	rt.GET("/", func(w httpx.ResponseWriter, r *httpx.Request) {
		w.Write([]byte("index"))
	})
	rt.GET("/:name", func(w httpx.ResponseWriter, r *httpx.Request) {
		w.Write([]byte("hi " + r.PathValue("name")))
	})

	for _, target := range []string{"/", "/Ada", "/Ada/Lovelace"} {
		res := rt.Request("GET", target, nil)
		fmt.Println(res.StatusCode, res.String())
	}
	res := rt.Request("DELETE", "/Ada", nil)
	fmt.Println(res.StatusCode, res.Header.Get("Allow"))
	// Output:
	// 200 index
	// 200 hi Ada
	// 404 not found
	// 405 GET, HEAD
}

// ExampleFlusher streams one greeting per line, flushing after each.
func ExampleFlusher() {
	h := httpx.HandlerFunc(func(w httpx.ResponseWriter, r *httpx.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, name := range []string{"Ada", "Grace", "Edsger"} {
			fmt.Fprintf(w, "Hello %s!\n", name)
			if f, ok := w.(httpx.Flusher); ok {
				f.Flush()
			}
		}
	})
	rec := httpx.NewRecorder()
	h.ServeHTTP(rec, &httpx.Request{Method: "GET"})
	fmt.Print(rec.Body.String())
	// Output:
	// Hello Ada!
	// Hello Grace!
	// Hello Edsger!
}
