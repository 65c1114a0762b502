package httpx

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"dqx0.com/go/greeter/httpx/internal/http1"
	"dqx0.com/go/greeter/internal/obs"
)

type Handler interface {
	ServeHTTP(ResponseWriter, *Request)
}

type HandlerFunc func(ResponseWriter, *Request)

func (f HandlerFunc) ServeHTTP(w ResponseWriter, r *Request) {
	f(w, r)
}

type ResponseWriter interface {
	Header() Header
	Write([]byte) (int, error)
	WriteHeader(status int)
}

// timeFormat is the IMF-fixdate layout of the Date header.
const timeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Server serves HTTP/1.x over TCP.
//
// A Server moves through idle, listening, serving and closed. Listen
// acquires the socket, Serve runs the accept loop, and Shutdown or Close
// release the socket and end the lifecycle; a closed Server cannot be
// restarted.
type Server struct {
	Addr                string
	Handler             Handler
	ReadTimeout         time.Duration
	ReadHeaderTimeout   time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	MaxHeaderBytes      int
	MaxTotalHeaderBytes int
	MaxBodyBytes        int64
	// EnableGzip compresses response bodies for clients that accept gzip
	// when the handler does not set Content-Length or Content-Encoding.
	EnableGzip bool

	Logger obs.Logger
	Meter  obs.Meter

	mu    sync.Mutex
	fsm   *fsm.FSM
	ln    net.Listener
	conns map[net.Conn]bool // value reports idle
	wg    sync.WaitGroup
}

// Listen binds s.Addr (":8080" when empty) without serving it yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.can(eventListen); err != nil {
		return err
	}
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "httpx: listen on %s", addr)
	}
	s.ln = ln
	s.transition(eventListen)
	s.logger().Logf(obs.Info, "listening on %s", ln.Addr())
	return nil
}

// ListenAndServe binds s.Addr unless Listen already did, then serves it.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	idle := s.is(stateIdle)
	s.mu.Unlock()
	if idle {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return ErrServerClosed
	}
	return s.Serve(ln)
}

// Serve accepts connections on l until the server is shut down, and always
// returns a non-nil error: ErrServerClosed after Shutdown or Close. l is
// closed on return.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.is(stateListening) && s.ln != l {
		s.mu.Unlock()
		return ErrServerStarted
	}
	if err := s.transition(eventServe); err != nil {
		s.mu.Unlock()
		if err == ErrServerClosed {
			l.Close()
		}
		return err
	}
	s.ln = l
	s.mu.Unlock()
	defer s.releaseListener(l)

	var backoff time.Duration
	for {
		c, err := l.Accept()
		if err != nil {
			if s.closing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.logger().Logf(obs.Warn, "accept: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				continue
			}
			return errors.Wrap(err, "httpx: accept")
		}
		backoff = 0
		if !s.trackConn(c) {
			c.Close()
			return ErrServerClosed
		}
		go s.serveConn(c)
	}
}

// ListenerAddr returns the bound address, or nil when not listening.
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes idle connections and waits for active
// ones to finish their current request. If ctx ends first its error is
// returned and the remaining connections are left to Close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	err := s.closeLocked(false)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the listener and every connection immediately.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(true)
}

func (s *Server) closeLocked(all bool) error {
	if !s.is(stateClosed) {
		s.logger().Logf(obs.Info, "shutting down")
		s.transition(eventClose)
	}
	var err error
	if s.ln != nil {
		if cerr := s.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Wrap(cerr, "httpx: close listener")
		}
		s.ln = nil
	}
	for c, idle := range s.conns {
		if all || idle {
			c.Close()
		}
	}
	return err
}

func (s *Server) releaseListener(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == l {
		l.Close()
		s.ln = nil
	}
	if !s.is(stateClosed) {
		s.transition(eventClose)
	}
}

func (s *Server) closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.is(stateClosed)
}

func (s *Server) trackConn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.is(stateClosed) {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[net.Conn]bool)
	}
	// Idle until a request head arrives.
	s.conns[c] = true
	s.wg.Add(1)
	return true
}

// setIdle records c's state. It returns false when c went idle during
// shutdown and must be dropped.
func (s *Server) setIdle(c net.Conn, idle bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c]; ok {
		s.conns[c] = idle
	}
	return !idle || !s.is(stateClosed)
}

func (s *Server) forgetConn(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) serveConn(c net.Conn) {
	defer s.forgetConn(c)
	defer c.Close()
	br := bufio.NewReader(c)
	bw := bufio.NewWriterSize(c, 4<<10)
	rr := &http1.Reader{
		BR:                  br,
		MaxHeaderBytes:      s.headerLimit(),
		MaxTotalHeaderBytes: s.totalHeaderLimit(),
		MaxBodyBytes:        s.MaxBodyBytes,
	}
	for first := true; ; first = false {
		s.setReadDeadline(c, first)
		pr, err := rr.ReadRequest()
		if err != nil {
			s.reject(c, bw, err)
			return
		}
		s.setIdle(c, false)
		if !s.serveRequest(c, bw, pr) {
			return
		}
		if !s.setIdle(c, true) {
			return
		}
	}
}

// reject answers a request that could not be parsed and logs why. The
// connection is closed afterwards.
func (s *Server) reject(c net.Conn, bw *bufio.Writer, err error) {
	if err == io.EOF {
		return
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, net.ErrClosed) {
		s.logger().Logf(obs.Debug, "conn %s: %v", c.RemoteAddr(), err)
		return
	}
	status, kind := 400, ErrBadRequest
	switch {
	case errors.Is(err, http1.ErrRequestLineTooLong):
		status, kind = 414, ErrURITooLong
	case errors.Is(err, http1.ErrLineTooLong), errors.Is(err, http1.ErrHeaderTooLarge):
		status, kind = 431, ErrHeaderTooLarge
	case errors.Is(err, ErrBodyTooLarge):
		status, kind = 413, ErrBodyTooLarge
	}
	s.logger().Logf(obs.Warn, "conn %s: %v: %v", c.RemoteAddr(), kind, err)
	s.meter().Counter("httpx_rejected_requests_total", 1, obs.Label{Key: "status", Value: strconv.Itoa(status)})
	if s.WriteTimeout > 0 {
		c.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	hdr := map[string][]string{"Content-Type": {"text/plain; charset=utf-8"}}
	body := strings.ToLower(http1.StatusText(status))
	if http1.WriteResponse(bw, status, hdr, []byte(body), false) != nil || bw.Flush() != nil {
		return
	}
	lingerClose(c)
}

// lingerClose half-closes c and discards what the peer still sends for a
// moment, so unread request bytes do not turn the close into a reset that
// destroys the error response.
func lingerClose(c net.Conn) {
	tc, ok := c.(interface{ CloseWrite() error })
	if !ok || tc.CloseWrite() != nil {
		return
	}
	c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	io.Copy(io.Discard, io.LimitReader(c, 256<<10))
}

// serveRequest runs the handler for one parsed request and reports whether
// the connection may carry another.
func (s *Server) serveRequest(c net.Conn, bw *bufio.Writer, pr *http1.ParsedRequest) bool {
	start := time.Now()
	hdr := Header(pr.Header)
	u, err := url.ParseRequestURI(pr.RequestURI)
	if err != nil {
		pr.Body.Close()
		s.reject(c, bw, errors.Wrapf(ErrBadRequest, "request target %q", pr.RequestURI))
		return false
	}
	host := hdr.Get("Host")
	if u.Host != "" {
		host = u.Host
	}
	if host == "" && pr.Proto == "HTTP/1.1" {
		pr.Body.Close()
		s.reject(c, bw, errors.Wrap(ErrBadRequest, "missing Host header"))
		return false
	}
	if s.ReadTimeout > 0 {
		c.SetReadDeadline(start.Add(s.ReadTimeout))
	} else {
		c.SetReadDeadline(time.Time{})
	}
	if s.WriteTimeout > 0 {
		c.SetWriteDeadline(start.Add(s.WriteTimeout))
	}

	r := &Request{
		Method:        pr.Method,
		URL:           u,
		RequestURI:    pr.RequestURI,
		Proto:         pr.Proto,
		Header:        hdr,
		Body:          pr.Body,
		Host:          host,
		ContentLength: pr.ContentLength,
		RemoteAddr:    c.RemoteAddr().String(),
	}
	identify(r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r = WithContext(r, requestContext(ctx, r))

	w := &response{
		bw:        bw,
		method:    pr.Method,
		proto:     pr.Proto,
		keepAlive: wantsKeepAlive(pr.Proto, hdr),
		gzipOK:    s.EnableGzip && acceptsGzip(hdr),
		hdr:       Header{},
	}
	w.hdr.Set("X-Request-Id", r.RequestID)
	if pr.Proto == "HTTP/1.1" && hdr.hasToken("Expect", "100-continue") {
		r.Body = &expectContinue{rc: r.Body, w: w}
	}

	s.dispatch(w, r)
	if err := r.Body.Close(); err != nil {
		w.keepAlive = false
	}
	defer func() { s.record(r, w, time.Since(start)) }()
	if w.aborted {
		return false
	}
	if err := w.finish(); err != nil {
		s.logger().Logf(obs.Debug, "conn %s: write response: %v", c.RemoteAddr(), err)
		return false
	}
	if err := bw.Flush(); err != nil {
		s.logger().Logf(obs.Debug, "conn %s: flush: %v", c.RemoteAddr(), err)
		return false
	}
	return w.keepAlive
}

// dispatch runs the handler, converting a panic into a 500 when nothing
// has been sent yet, or into an aborted connection otherwise.
func (s *Server) dispatch(w *response, r *Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		s.logger().Logf(obs.Error, "panic serving %s %s (request %s): %v\n%s", r.Method, r.RequestURI, r.RequestID, p, debug.Stack())
		w.keepAlive = false
		if w.wroteHdr {
			w.aborted = true
			return
		}
		w.hdr = Header{"X-Request-Id": {r.RequestID}, "Content-Type": {"text/plain; charset=utf-8"}}
		w.WriteHeader(500)
		w.Write([]byte("internal server error"))
	}()
	h := s.Handler
	if h == nil {
		h = HandlerFunc(notFound)
	}
	h.ServeHTTP(w, r)
}

// identify assigns the request ID and trace context of an inbound request.
func identify(r *Request) {
	r.RequestID = newRequestID()
	if v := r.Header.Get("X-Request-Id"); v != "" && len(v) <= 128 {
		r.CorrelationID = http1.SanitizeHeaderValue(v)
	}
	if tid, sid, flags, ok := parseTraceparent(r.Header.Get("Traceparent")); ok {
		r.TraceID, r.ParentSpanID, r.TraceFlags = tid, sid, flags
		if ts := r.Header.Values("Tracestate"); len(ts) > 0 {
			r.TraceState = NewTraceStateBuilder(strings.Join(ts, ",")).String()
		}
	} else {
		r.TraceID, r.TraceFlags = genTraceID(), "01"
	}
	r.SpanID = genSpanID()
}

func (s *Server) record(r *Request, w *response, d time.Duration) {
	status := w.status
	if status == 0 {
		status = 200
	}
	s.logger().Logf(obs.Info, "%s %s %s %d %dB %v id=%s", r.RemoteAddr, r.Method, r.RequestURI, status, w.written, d.Round(time.Microsecond), r.RequestID)
	m := s.meter()
	m.Histogram("httpx_request_duration_seconds", d.Seconds(), obs.Label{Key: "method", Value: r.Method})
	m.Counter("httpx_requests_total", 1, obs.Label{Key: "method", Value: r.Method}, obs.Label{Key: "status", Value: strconv.Itoa(status)})
}

func (s *Server) setReadDeadline(c net.Conn, first bool) {
	d := s.IdleTimeout
	if first {
		d = s.ReadHeaderTimeout
	}
	if d == 0 {
		d = s.ReadTimeout
	}
	if d > 0 {
		c.SetReadDeadline(time.Now().Add(d))
	} else {
		c.SetReadDeadline(time.Time{})
	}
}

func (s *Server) headerLimit() int {
	if s.MaxHeaderBytes <= 0 {
		return 8 << 10
	}
	return s.MaxHeaderBytes
}

func (s *Server) totalHeaderLimit() int {
	if s.MaxTotalHeaderBytes <= 0 {
		return 64 << 10
	}
	return s.MaxTotalHeaderBytes
}

func (s *Server) logger() obs.Logger {
	return obs.OrNop(s.Logger)
}

func (s *Server) meter() obs.Meter {
	if s.Meter == nil {
		return obs.NopMeter{}
	}
	return s.Meter
}

func wantsKeepAlive(proto string, h Header) bool {
	if h.hasToken("Connection", "close") {
		return false
	}
	if proto == "HTTP/1.1" {
		return true
	}
	return h.hasToken("Connection", "keep-alive")
}

// response streams a handler's reply onto the connection. Bodies without
// a Content-Length use chunked encoding on HTTP/1.1 and are delimited by
// closing the connection on HTTP/1.0.
type response struct {
	bw        *bufio.Writer
	method    string
	proto     string
	keepAlive bool
	gzipOK    bool
	hdr       Header
	status    int
	wroteHdr  bool
	chunked   bool
	declared  int64 // Content-Length set by the handler, -1 if none
	written   int64
	body      io.Writer
	cw        *http1.ChunkedWriter
	gz        *gzip.Writer
	aborted   bool
	err       error
}

func (w *response) Header() Header {
	return w.hdr
}

func (w *response) WriteHeader(status int) {
	if w.wroteHdr {
		return
	}
	if status == 0 {
		status = 200
	}
	w.status = status
	w.err = w.start()
}

func (w *response) start() error {
	w.wroteHdr = true
	if w.status == 0 {
		w.status = 200
	}
	if w.hdr.hasToken("Connection", "close") {
		w.keepAlive = false
	}
	w.declared = -1
	if v := w.hdr.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			w.declared = n
		} else {
			w.hdr.Del("Content-Length")
		}
	}
	bodyAllowed := !noResponseBody(w.status, "")
	sendBody := bodyAllowed && w.method != "HEAD"
	useGzip := w.gzipOK && bodyAllowed && w.declared < 0 && w.hdr.Get("Content-Encoding") == ""
	if useGzip {
		w.hdr.Set("Content-Encoding", "gzip")
		w.hdr.Add("Vary", "Accept-Encoding")
	}
	if sendBody && w.declared < 0 {
		if w.proto == "HTTP/1.1" {
			w.chunked = true
		} else {
			w.keepAlive = false
		}
	}
	if w.hdr.Get("Date") == "" {
		w.hdr.Set("Date", time.Now().UTC().Format(timeFormat))
	}
	if err := http1.StartResponse(w.bw, w.status, w.hdr, w.chunked, w.keepAlive); err != nil {
		return err
	}
	switch {
	case !sendBody:
		w.body = io.Discard
	case w.chunked:
		w.cw = http1.NewChunkedWriter(w.bw)
		w.body = w.cw
	default:
		w.body = w.bw
	}
	if useGzip && sendBody {
		gz, err := gzip.NewWriterLevel(w.body, gzipLevel)
		if err != nil {
			return err
		}
		w.gz = gz
		w.body = gz
	}
	return nil
}

func (w *response) Write(p []byte) (int, error) {
	if !w.wroteHdr {
		w.WriteHeader(200)
	}
	if w.err != nil {
		return 0, w.err
	}
	if w.declared >= 0 && w.written+int64(len(p)) > w.declared {
		return 0, ErrContentLength
	}
	n, err := w.body.Write(p)
	w.written += int64(n)
	if err != nil {
		w.err = err
	}
	return n, err
}

func (w *response) Flush() error {
	if !w.wroteHdr {
		w.WriteHeader(200)
	}
	if w.err != nil {
		return w.err
	}
	if w.gz != nil {
		if err := w.gz.Flush(); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}

// finish completes the body framing. A handler that wrote nothing gets an
// empty 200 with Content-Length: 0.
func (w *response) finish() error {
	if !w.wroteHdr {
		if w.hdr.Get("Content-Length") == "" {
			w.hdr.Set("Content-Length", "0")
		}
		w.WriteHeader(200)
	}
	if w.err != nil {
		return w.err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	if w.cw != nil {
		if err := w.cw.Close(); err != nil {
			return err
		}
	}
	if w.declared >= 0 && w.written < w.declared && w.method != "HEAD" && !noResponseBody(w.status, "") {
		// The peer is still waiting for bytes that will never come.
		w.keepAlive = false
	}
	return nil
}

// expectContinue sends the interim 100 response the first time the handler
// reads a body the client is holding back.
type expectContinue struct {
	rc   io.ReadCloser
	w    *response
	sent bool
}

func (e *expectContinue) Read(p []byte) (int, error) {
	if !e.sent {
		e.sent = true
		if !e.w.wroteHdr {
			if err := http1.WriteContinue(e.w.bw); err != nil {
				return 0, err
			}
		}
	}
	return e.rc.Read(p)
}

// Close skips draining when the body was never requested, since the
// client may not send it; the connection is not reused in that case.
func (e *expectContinue) Close() error {
	if !e.sent {
		e.w.keepAlive = false
		return nil
	}
	return e.rc.Close()
}

func noResponseBody(status int, method string) bool {
	if method == "HEAD" {
		return true
	}
	if status >= 100 && status < 200 {
		return true
	}
	return status == 204 || status == 304
}
