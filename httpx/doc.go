// Package httpx provides a small, security‑minded HTTP/1.1 server and
// request router aimed at learning, control and embeddability.
//
// Highlights
//   - Server: streaming ResponseWriter, keep‑alive, chunked transfer,
//     Expect: 100‑continue, gzip (opt‑in), robust parsing with CL/TE
//     validation, header size limits, host validation, an explicit
//     listen/serve/shutdown lifecycle, panic recovery, logging/metrics hooks.
//   - Router: dispatch table keyed by method and path pattern with ":name"
//     captures, 404/405 handling and an in‑process Request helper for tests.
//   - Identity: per‑request UUIDs, X-Request-Id correlation and W3C
//     traceparent/tracestate parsing, exposed on Request and its context.
//   - Observability: plug‑in Logger and Meter interfaces.
//
// Quick start:
//
//	rt := httpx.NewRouter()
//	rt.GET("/:name", func(w httpx.ResponseWriter, r *httpx.Request) {
//	    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
//	    w.Write([]byte("hello " + r.PathValue("name")))
//	})
//	s := &httpx.Server{Addr: "127.0.0.1:8000", Handler: rt}
//	if err := s.Listen(); err != nil { log.Fatal(err) } // bind errors surface here
//	go s.ListenAndServe()
//	...
//	s.Shutdown(ctx) // listener released, in-flight requests finish
package httpx
