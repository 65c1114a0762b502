package http1

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrMalformed reports a request that cannot be parsed as HTTP/1.x.
	ErrMalformed = errors.New("http1: malformed request")
	// ErrLineTooLong reports a header line above the line limit.
	ErrLineTooLong = errors.New("http1: line too long")
	// ErrRequestLineTooLong reports a request line above the line limit.
	ErrRequestLineTooLong = errors.New("http1: request line too long")
	// ErrHeaderTooLarge reports a header block above the total limit.
	ErrHeaderTooLarge = errors.New("http1: header block too large")
	// ErrBodyTooLarge reports a request body above the body limit.
	ErrBodyTooLarge = errors.New("http1: body too large")
)

// ParsedRequest is a minimal representation parsed from the wire.
type ParsedRequest struct {
	Method        string
	RequestURI    string
	Proto         string
	Header        map[string][]string
	ContentLength int64
	Body          io.ReadCloser
}

// Reader parses requests from a buffered connection. Zero limits disable
// the corresponding check.
type Reader struct {
	BR                  *bufio.Reader
	MaxHeaderBytes      int   // per line, request line included
	MaxTotalHeaderBytes int   // whole header block, CRLFs included
	MaxBodyBytes        int64 // request body
}

// ReadRequest reads one request head and frames its body. The returned body
// must be closed before the next request is read from the same Reader.
func (r *Reader) ReadRequest() (*ParsedRequest, error) {
	line, err := readLine(r.BR, r.MaxHeaderBytes)
	if err == ErrLineTooLong {
		return nil, ErrRequestLineTooLong
	}
	if err != nil {
		return nil, err
	}
	method, uri, proto, ok := parseRequestLine(line)
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "request line %q", line)
	}
	hdr, err := r.readHeaders()
	if err != nil {
		return nil, err
	}

	pr := &ParsedRequest{Method: method, RequestURI: uri, Proto: proto, Header: hdr}
	te, hasTE := hdr["Transfer-Encoding"]
	cl, hasCL := hdr["Content-Length"]
	switch {
	case hasTE && hasCL:
		return nil, errors.Wrap(ErrMalformed, "both Transfer-Encoding and Content-Length")
	case hasTE:
		if !chunkedLast(te) {
			return nil, errors.Wrapf(ErrMalformed, "unsupported Transfer-Encoding %q", strings.Join(te, ", "))
		}
		pr.ContentLength = -1
		pr.Body = newChunkedReader(r.BR, r.MaxHeaderBytes, r.MaxBodyBytes)
	case hasCL:
		n, err := parseContentLength(cl)
		if err != nil {
			return nil, err
		}
		if r.MaxBodyBytes > 0 && n > r.MaxBodyBytes {
			return nil, errors.Wrapf(ErrBodyTooLarge, "content length %d", n)
		}
		pr.ContentLength = n
		pr.Body = &fixedBody{lr: io.LimitedReader{R: r.BR, N: n}}
	default:
		pr.Body = emptyBody{}
	}
	return pr, nil
}

func (r *Reader) readHeaders() (map[string][]string, error) {
	h := make(map[string][]string)
	total := 0
	for {
		line, err := readLine(r.BR, r.MaxHeaderBytes)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		total += len(line) + 2
		if r.MaxTotalHeaderBytes > 0 && total > r.MaxTotalHeaderBytes {
			return nil, ErrHeaderTooLarge
		}
		// Obsolete line folding is rejected (RFC 9112 5.2).
		if line[0] == ' ' || line[0] == '\t' {
			return nil, errors.Wrap(ErrMalformed, "folded header line")
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, errors.Wrapf(ErrMalformed, "header line %q", line)
		}
		k := line[:i]
		if SanitizeHeaderKey(k) == "" {
			return nil, errors.Wrapf(ErrMalformed, "header name %q", k)
		}
		k = canonicalHeaderKey(k)
		h[k] = append(h[k], strings.Trim(line[i+1:], " \t"))
	}
}

func parseRequestLine(line string) (method, uri, proto string, ok bool) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", false
	}
	method, uri, proto = parts[0], parts[1], parts[2]
	if SanitizeHeaderKey(method) == "" || uri == "" {
		return "", "", "", false
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return "", "", "", false
	}
	return method, uri, proto, true
}

// parseContentLength accepts repeated or comma-joined values only when they
// all agree.
func parseContentLength(values []string) (int64, error) {
	n := int64(-1)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			m, err := strconv.ParseInt(part, 10, 64)
			if err != nil || m < 0 {
				return 0, errors.Wrapf(ErrMalformed, "content length %q", part)
			}
			if n >= 0 && m != n {
				return 0, errors.Wrapf(ErrMalformed, "conflicting content lengths %d and %d", n, m)
			}
			n = m
		}
	}
	if n < 0 {
		return 0, errors.Wrap(ErrMalformed, "empty content length")
	}
	return n, nil
}

func chunkedLast(te []string) bool {
	var last string
	for _, v := range te {
		for _, coding := range strings.Split(v, ",") {
			if c := strings.TrimSpace(coding); c != "" {
				last = c
			}
		}
	}
	return strings.EqualFold(last, "chunked")
}

// readLine reads up to LF and strips one trailing CR.
func readLine(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		sb.WriteByte(b)
		if limit > 0 && sb.Len() > limit+1 {
			return "", ErrLineTooLong
		}
	}
	return strings.TrimSuffix(sb.String(), "\r"), nil
}

type emptyBody struct{}

func (emptyBody) Read([]byte) (int, error) { return 0, io.EOF }
func (emptyBody) Close() error             { return nil }

type fixedBody struct {
	lr io.LimitedReader
}

func (b *fixedBody) Read(p []byte) (int, error) {
	n, err := b.lr.Read(p)
	if err == io.EOF && b.lr.N > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// Close discards the unread remainder so the connection can carry the next
// request.
func (b *fixedBody) Close() error {
	if b.lr.N <= 0 {
		return nil
	}
	_, err := io.Copy(io.Discard, &b.lr)
	return err
}

// canonicalHeaderKey mirrors textproto.CanonicalMIMEHeaderKey for token input.
func canonicalHeaderKey(s string) string {
	b := []byte(s)
	upper := true
	for i, c := range b {
		switch {
		case upper && c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case !upper && c >= 'A' && c <= 'Z':
			b[i] = c - 'A' + 'a'
		}
		upper = c == '-'
	}
	return string(b)
}
