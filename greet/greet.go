// Package greet answers GET / and GET /:name with a plain-text greeting.
//
// The same dispatch table is offered on two transports: Register installs
// it on an httpx.Router, NewMuxRouter builds it as a gorilla/mux router for
// net/http servers. Both answer identically.
package greet

import (
	"net/http"
	"net/url"
	"strconv"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"dqx0.com/go/greeter/httpx"
)

// DefaultName is greeted when the request names nobody.
const DefaultName = "World"

const contentType = "text/plain; charset=utf-8"

// Greeting returns "Hello {name}!". An empty name greets DefaultName.
func Greeting(name string) string {
	if name == "" {
		name = DefaultName
	}
	return "Hello " + name + "!"
}

// Handler serves the greeting for the "name" path parameter.
var Handler httpx.HandlerFunc = func(w httpx.ResponseWriter, r *httpx.Request) {
	msg := Greeting(r.PathValue("name"))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(msg)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(msg))
}

// Register installs GET / and GET /:name on rt. HEAD is answered by the
// router from the GET routes.
func Register(rt *httpx.Router) {
	rt.Handle("GET", "/", Handler)
	rt.Handle("GET", "/:name", Handler)
}

// NewRouter returns an httpx.Router carrying the greeting routes.
func NewRouter() *httpx.Router {
	rt := httpx.NewRouter()
	Register(rt)
	return rt
}

// NewMuxRouter returns the greeting routes on a gorilla/mux router for
// net/http servers. Paths are matched escaped and uncleaned, so "%2F" stays
// inside one segment and "//" is not redirected.
func NewMuxRouter() *mux.Router {
	r := mux.NewRouter().UseEncodedPath().SkipClean(true)
	r.HandleFunc("/", serveMux).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{name}", serveMux).Methods(http.MethodGet, http.MethodHead)
	r.NotFoundHandler = plain(http.StatusNotFound, "not found", nil)
	r.MethodNotAllowedHandler = plain(http.StatusMethodNotAllowed, "method not allowed",
		[]string{"Allow", "GET, HEAD"})
	return r
}

func serveMux(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s, err := url.PathUnescape(name); err == nil && utf8.ValidString(s) {
		name = s
	}
	msg := Greeting(name)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(msg)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(msg))
}

func plain(status int, body string, kv []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i+1 < len(kv); i += 2 {
			w.Header().Set(kv[i], kv[i+1])
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}
