package httpx

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Trace carries minimal W3C trace context for propagation.
// TraceID is 32‑hex, SpanID is 16‑hex. Flags are 2‑hex (e.g. "01").
type Trace struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Flags        string
	State        string
}

// Traceparent renders t as a traceparent header value.
func (t Trace) Traceparent() string {
	return formatTraceparent(t.TraceID, t.SpanID, t.Flags)
}

func genTraceID() string { return randomHex(16) }

func genSpanID() string { return randomHex(8) }

// randomHex returns n random bytes hex encoded, retrying on the all-zero
// value which W3C reserves as invalid.
func randomHex(n int) string {
	b := make([]byte, n)
	for {
		if _, err := rand.Read(b); err != nil {
			continue
		}
		for _, v := range b {
			if v != 0 {
				return hex.EncodeToString(b)
			}
		}
	}
}

// parseTraceparent extracts trace-id, span-id, flags. Returns ok=false if invalid.
func parseTraceparent(v string) (traceID, spanID, flags string, ok bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) < 4 {
		return "", "", "", false
	}
	ver, tid, sid, fl := parts[0], parts[1], parts[2], parts[3]
	if len(ver) != 2 || len(tid) != 32 || len(sid) != 16 || len(fl) != 2 {
		return "", "", "", false
	}
	// Version ff is forbidden; version 00 has exactly four fields.
	if !isHex(ver) || strings.EqualFold(ver, "ff") || (ver == "00" && len(parts) != 4) {
		return "", "", "", false
	}
	if !isHex(tid) || !isHex(sid) || !isHex(fl) {
		return "", "", "", false
	}
	if allZero(tid) || allZero(sid) {
		return "", "", "", false
	}
	return strings.ToLower(tid), strings.ToLower(sid), strings.ToLower(fl), true
}

func formatTraceparent(traceID, spanID, flags string) string {
	if flags == "" {
		flags = "01"
	}
	return "00-" + strings.ToLower(traceID) + "-" + strings.ToLower(spanID) + "-" + strings.ToLower(flags)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			continue
		}
		return false
	}
	return true
}

func allZero(s string) bool {
	return strings.Trim(s, "0") == ""
}
