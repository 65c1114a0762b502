package httpx

// Flusher allows a handler to flush buffered data to the client
// mid‑response (useful for streaming and server‑sent events).
// When gzip is active the compressor is flushed first.
type Flusher interface {
	Flush() error
}
