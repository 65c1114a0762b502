package httpx

import (
	"bytes"
	"io"
	"strconv"
)

// Recorder is a ResponseWriter that buffers the response in memory. It is
// used by Router.Request and is handy in handler tests.
type Recorder struct {
	Code      int
	HeaderMap Header
	Body      bytes.Buffer

	wroteHeader bool
	snapshot    Header
}

// NewRecorder returns a Recorder with status 200.
func NewRecorder() *Recorder {
	return &Recorder{Code: 200, HeaderMap: Header{}}
}

func (rec *Recorder) Header() Header {
	if rec.HeaderMap == nil {
		rec.HeaderMap = Header{}
	}
	return rec.HeaderMap
}

func (rec *Recorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	if status == 0 {
		status = 200
	}
	rec.Code = status
	rec.wroteHeader = true
	rec.snapshot = rec.Header().Clone()
}

func (rec *Recorder) Write(p []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(200)
	}
	return rec.Body.Write(p)
}

func (rec *Recorder) Flush() error {
	if !rec.wroteHeader {
		rec.WriteHeader(200)
	}
	return nil
}

// Result returns the recorded response. Headers are those present when the
// status was written, as on the wire; Content-Length is filled in when the
// handler left it unset.
func (rec *Recorder) Result() *Response {
	if !rec.wroteHeader {
		rec.WriteHeader(200)
	}
	h := rec.snapshot.Clone()
	if h.Get("Content-Length") == "" && !noResponseBody(rec.Code, "") {
		h.Set("Content-Length", strconv.Itoa(rec.Body.Len()))
	}
	return &Response{
		StatusCode: rec.Code,
		Header:     h,
		Body:       append([]byte(nil), rec.Body.Bytes()...),
	}
}

type emptyBody struct{}

func (emptyBody) Read([]byte) (int, error) { return 0, io.EOF }
func (emptyBody) Close() error             { return nil }
