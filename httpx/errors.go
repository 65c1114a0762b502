package httpx

import (
	"github.com/pkg/errors"

	"dqx0.com/go/greeter/httpx/internal/http1"
)

var (
	ErrBadRequest     = errors.New("httpx: bad request")
	ErrHeaderTooLarge = errors.New("httpx: header too large")
	ErrURITooLong     = errors.New("httpx: request line too long")
	// ErrBodyTooLarge is returned from Request.Body reads once MaxBodyBytes
	// is exceeded.
	ErrBodyTooLarge = http1.ErrBodyTooLarge
	// ErrContentLength is returned by ResponseWriter.Write when a handler
	// writes more bytes than the Content-Length it declared.
	ErrContentLength = errors.New("httpx: wrote more than the declared Content-Length")
	// ErrServerClosed is returned by Listen, Serve and ListenAndServe after
	// Shutdown or Close.
	ErrServerClosed = errors.New("httpx: server closed")
	// ErrServerStarted is returned when a Server is asked to listen or serve
	// a second time.
	ErrServerStarted = errors.New("httpx: server already started")
)
