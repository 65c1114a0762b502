package httpx

import (
	"strings"
)

// maxTraceStateMembers is the W3C cap on tracestate list members.
const maxTraceStateMembers = 32

// TraceStateBuilder provides safe construction of a W3C tracestate header value.
// It performs basic key/value validation and keeps members most-recent first.
type TraceStateBuilder struct {
	members []tsMember
}

type tsMember struct {
	key, value string
}

// NewTraceStateBuilder parses an existing tracestate string. Invalid and
// duplicate members are dropped; the first occurrence of a key wins.
func NewTraceStateBuilder(v string) *TraceStateBuilder {
	b := &TraceStateBuilder{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		i := strings.IndexByte(part, '=')
		if i <= 0 {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(part[:i]))
		val := strings.TrimSpace(part[i+1:])
		if !validTSKey(k) || !validTSValue(val) || b.index(k) >= 0 {
			continue
		}
		if len(b.members) == maxTraceStateMembers {
			break
		}
		b.members = append(b.members, tsMember{k, val})
	}
	return b
}

// Set inserts or updates key with value and moves it to the front.
// Returns false if key/value invalid. The oldest member is evicted when the
// list is full.
func (b *TraceStateBuilder) Set(key, value string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	v := strings.TrimSpace(value)
	if !validTSKey(k) || !validTSValue(v) {
		return false
	}
	if i := b.index(k); i >= 0 {
		b.members = append(b.members[:i], b.members[i+1:]...)
	}
	if len(b.members) == maxTraceStateMembers {
		b.members = b.members[:maxTraceStateMembers-1]
	}
	b.members = append([]tsMember{{k, v}}, b.members...)
	return true
}

// Len returns the number of members.
func (b *TraceStateBuilder) Len() int { return len(b.members) }

// String renders the tracestate.
func (b *TraceStateBuilder) String() string {
	var sb strings.Builder
	for i, m := range b.members {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(m.key)
		sb.WriteByte('=')
		sb.WriteString(m.value)
	}
	return sb.String()
}

func (b *TraceStateBuilder) index(k string) int {
	for i, m := range b.members {
		if m.key == k {
			return i
		}
	}
	return -1
}

// Basic key validation per W3C (simplified): key or key@tenant, lower-case a-z0-9 and _-*./
func validTSKey(k string) bool {
	if k == "" || len(k) > 256 {
		return false
	}
	parts := strings.Split(k, "@")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for i := 0; i < len(p); i++ {
			c := p[i]
			if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '*' || c == '/' || c == '.' {
				continue
			}
			return false
		}
	}
	return true
}

// Basic value validation: at most 256 printable ASCII bytes, no ',' or '='.
func validTSValue(v string) bool {
	if v == "" || len(v) > 256 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < 0x20 || c > 0x7e || c == ',' || c == '=' {
			return false
		}
	}
	return true
}
