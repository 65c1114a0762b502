package http1

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var errChunkFormat = errors.New("http1: invalid chunk format")

// chunkedReader decodes a Transfer-Encoding: chunked request body.
// Trailer fields are read and discarded.
type chunkedReader struct {
	br      *bufio.Reader
	maxLine int
	maxBody int64
	read    int64
	remain  int64 // bytes left in the current chunk
	done    bool
	err     error
}

func newChunkedReader(br *bufio.Reader, maxLine int, maxBody int64) io.ReadCloser {
	return &chunkedReader{br: br, maxLine: maxLine, maxBody: maxBody}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}
	if c.remain == 0 {
		size, err := c.nextChunk()
		if err != nil {
			c.err = err
			return 0, err
		}
		if size == 0 {
			if err := c.skipTrailers(); err != nil {
				c.err = err
				return 0, err
			}
			c.done = true
			return 0, io.EOF
		}
		c.remain = size
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > c.remain {
		p = p[:c.remain]
	}
	n, err := io.ReadFull(c.br, p)
	c.remain -= int64(n)
	c.read += int64(n)
	if err != nil {
		c.err = io.ErrUnexpectedEOF
		return n, c.err
	}
	if c.maxBody > 0 && c.read > c.maxBody {
		c.err = ErrBodyTooLarge
		return n, c.err
	}
	if c.remain == 0 {
		if err := c.expectCRLF(); err != nil {
			c.err = err
			return n, err
		}
	}
	return n, nil
}

// Close drains the body to its terminating chunk.
func (c *chunkedReader) Close() error {
	if c.done {
		return nil
	}
	_, err := io.Copy(io.Discard, c)
	return err
}

func (c *chunkedReader) nextChunk() (int64, error) {
	line, err := readLine(c.br, c.maxLine)
	if err != nil {
		return 0, err
	}
	// Chunk extensions are ignored: "<hex>;name=value".
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 16 {
		return 0, errChunkFormat
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, errChunkFormat
	}
	return n, nil
}

func (c *chunkedReader) expectCRLF() error {
	var b [2]byte
	if _, err := io.ReadFull(c.br, b[:]); err != nil {
		return io.ErrUnexpectedEOF
	}
	if b[0] != '\r' || b[1] != '\n' {
		return errors.Wrapf(errChunkFormat, "expected CRLF after chunk data, got %q", b[:])
	}
	return nil
}

func (c *chunkedReader) skipTrailers() error {
	for {
		line, err := readLine(c.br, c.maxLine)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
	}
}

// ChunkedWriter encodes writes as HTTP/1.1 chunks. Close writes the
// terminating zero-length chunk but does not close the underlying writer.
type ChunkedWriter struct {
	bw     *bufio.Writer
	closed bool
}

// NewChunkedWriter returns a ChunkedWriter on bw.
func NewChunkedWriter(bw *bufio.Writer) *ChunkedWriter {
	return &ChunkedWriter{bw: bw}
}

func (w *ChunkedWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("http1: write after close of chunked body")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(w.bw, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	if _, err := w.bw.Write(p); err != nil {
		return 0, err
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *ChunkedWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.bw.WriteString("0\r\n\r\n")
	return err
}
