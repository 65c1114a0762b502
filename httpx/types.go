package httpx

import (
	"net/textproto"
	"strings"
)

// Header maps canonical header names to their values.
type Header map[string][]string

func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	if vv := h[textproto.CanonicalMIMEHeaderKey(key)]; len(vv) > 0 {
		return vv[0]
	}
	return ""
}

// Values returns all values of key. The slice is not copied.
func (h Header) Values(key string) []string {
	if h == nil {
		return nil
	}
	return h[textproto.CanonicalMIMEHeaderKey(key)]
}

func (h Header) Set(key, value string) {
	if h == nil {
		return
	}
	h[textproto.CanonicalMIMEHeaderKey(key)] = []string{value}
}

func (h Header) Add(key, value string) {
	if h == nil {
		return
	}
	k := textproto.CanonicalMIMEHeaderKey(key)
	h[k] = append(h[k], value)
}

func (h Header) Del(key string) {
	if h == nil {
		return
	}
	delete(h, textproto.CanonicalMIMEHeaderKey(key))
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := make(Header, len(h))
	for k, vv := range h {
		h2[k] = append([]string(nil), vv...)
	}
	return h2
}

// hasToken reports whether any comma-separated element of key's values
// equals token, case-insensitively.
func (h Header) hasToken(key, token string) bool {
	for _, v := range h.Values(key) {
		for _, el := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(el), token) {
				return true
			}
		}
	}
	return false
}
