package httpx

import (
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// gzipLevel trades ratio for latency on small text responses.
const gzipLevel = gzip.BestSpeed

// acceptsGzip reports whether an Accept-Encoding header allows gzip:
// "gzip" or "*" listed without q=0.
func acceptsGzip(h Header) bool {
	for _, v := range h.Values("Accept-Encoding") {
		for _, el := range strings.Split(v, ",") {
			coding, params, _ := strings.Cut(strings.TrimSpace(el), ";")
			coding = strings.TrimSpace(coding)
			if !strings.EqualFold(coding, "gzip") && coding != "*" {
				continue
			}
			if qZero(params) {
				continue
			}
			return true
		}
	}
	return false
}

func qZero(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && q == 0
	}
	return false
}
