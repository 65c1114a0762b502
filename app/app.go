// Package app runs the greeter on the configured transport and hands back
// a Handle that controls the running server.
package app

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"

	"dqx0.com/go/greeter/greet"
	"dqx0.com/go/greeter/httpx"
	"dqx0.com/go/greeter/internal/config"
	"dqx0.com/go/greeter/internal/obs"
)

// Metric names shared by both transports.
const (
	metricRequests = "httpx_requests_total"
	metricDuration = "httpx_request_duration_seconds"
)

// Handle controls a server started by Run.
type Handle struct {
	addr     net.Addr
	meter    *obs.MemMeter
	shutdown func(context.Context) error
	close    func() error

	once sync.Once
	done chan struct{}
	err  error
}

// Run binds cfg.Addr and serves the greeting routes in the background. A
// bind failure is returned before anything is served. The server shuts
// down gracefully, bounded by cfg.ShutdownTimeout, when ctx ends or
// Handle.Shutdown is called.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Handle, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Handle{meter: &obs.MemMeter{}, done: make(chan struct{})}
	var serve func() error
	switch cfg.Transport {
	case config.TransportNet:
		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return nil, errors.Wrapf(err, "listen on %s", cfg.Addr)
		}
		hs := newNetServer(cfg, logger, h.meter)
		h.addr = ln.Addr()
		h.shutdown, h.close = hs.Shutdown, hs.Close
		serve = func() error { return hs.Serve(ln) }
		logger.Info("listening", "addr", ln.Addr().String(), "transport", cfg.Transport)
	default:
		s := newHTTPXServer(cfg, logger, h.meter)
		if err := s.Listen(); err != nil {
			return nil, err
		}
		h.addr = s.ListenerAddr()
		h.shutdown, h.close = s.Shutdown, s.Close
		serve = s.ListenAndServe
	}

	go func() {
		err := serve()
		if errors.Is(err, httpx.ErrServerClosed) || errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		h.err = err
		close(h.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := h.Shutdown(sctx); err != nil {
				logger.Warn("shutdown", "err", err)
			}
		case <-h.done:
		}
	}()
	return h, nil
}

// Addr returns the bound address, e.g. "127.0.0.1:8000".
func (h *Handle) Addr() string {
	return h.addr.String()
}

// Shutdown stops accepting connections and waits for in-flight requests.
// If ctx ends first the remaining connections are closed and ctx's error
// is returned. The listening socket is released either way.
func (h *Handle) Shutdown(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		if err = h.shutdown(ctx); err != nil {
			h.close()
		}
	})
	<-h.done
	return err
}

// Done is closed once the server has stopped serving.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the serve error after Done is closed. A requested shutdown
// yields nil.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Requests returns the number of requests answered so far.
func (h *Handle) Requests() int {
	return int(h.meter.CounterTotal(metricRequests))
}

func newHTTPXServer(cfg *config.Config, logger *slog.Logger, m obs.Meter) *httpx.Server {
	return &httpx.Server{
		Addr:              cfg.Addr,
		Handler:           greet.NewRouter(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		EnableGzip:        cfg.Gzip,
		Logger:            obs.SlogLogger{L: logger},
		Meter:             m,
	}
}

func newNetServer(cfg *config.Config, logger *slog.Logger, m obs.Meter) *http.Server {
	var h http.Handler = greet.NewMuxRouter()
	if cfg.Gzip {
		h = gzhttp.GzipHandler(h)
	}
	return &http.Server{
		Handler:           instrument(h, cfg.HTTP.MaxBodyBytes, logger, m),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// statusWriter remembers the status and size written through it.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// instrument gives net/http requests the request ID, body limit, access
// log line and metrics that httpx.Server applies itself.
func instrument(next http.Handler, maxBody int64, logger *slog.Logger, m obs.Meter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		if maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		d := time.Since(start)
		logger.Info("request", "remote", r.RemoteAddr, "method", r.Method, "uri", r.RequestURI,
			"status", status, "bytes", sw.written, "duration", d.Round(time.Microsecond), "id", id)
		m.Histogram(metricDuration, d.Seconds(), obs.Label{Key: "method", Value: r.Method})
		m.Counter(metricRequests, 1, obs.Label{Key: "method", Value: r.Method}, obs.Label{Key: "status", Value: strconv.Itoa(status)})
	})
}
