package httpx

import "testing"

func TestHeaderCanonicalization(t *testing.T) {
	h := Header{}
	h.Add("x-foo", "a")
	h.Add("X-Foo", "b")
	if got := h.Get("X-FOO"); got != "a" {
		t.Fatalf("Get canonical = %q, want %q", got, "a")
	}
	if got := len(h.Values("x-foo")); got != 2 {
		t.Fatalf("len values = %d, want 2", got)
	}
	h.Set("content-type", "text/plain")
	if got := h.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("content-type = %q", got)
	}
	h.Del("x-foo")
	if got := h.Get("X-Foo"); got != "" {
		t.Fatalf("after Del, got %q, want empty", got)
	}
}

func TestHeaderClone(t *testing.T) {
	h := Header{"A": {"1"}}
	c := h.Clone()
	c.Add("A", "2")
	if len(h["A"]) != 1 {
		t.Fatalf("clone shares storage with original: %v", h)
	}
	var nilH Header
	if nilH.Clone() != nil || nilH.Get("A") != "" {
		t.Fatal("nil header should stay nil and read empty")
	}
}

func TestHeaderHasToken(t *testing.T) {
	h := Header{"Connection": {"keep-alive, Close"}}
	if !h.hasToken("connection", "close") {
		t.Fatal("expected close token")
	}
	if h.hasToken("Connection", "upgrade") {
		t.Fatal("unexpected upgrade token")
	}
}

func TestAcceptsGzip(t *testing.T) {
	for v, want := range map[string]bool{
		"":                    false,
		"gzip":                true,
		"deflate, GZIP;q=0.5": true,
		"gzip;q=0":            false,
		"gzip; q=0.0, br":     false,
		"*":                   true,
		"identity":            false,
	} {
		h := Header{}
		if v != "" {
			h.Set("Accept-Encoding", v)
		}
		if got := acceptsGzip(h); got != want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", v, got, want)
		}
	}
}
