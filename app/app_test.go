package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqx0.com/go/greeter/internal/config"
	"dqx0.com/go/greeter/internal/logging"
)

func testConfig(transport string) *config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.Transport = transport
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func fetch(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	c := &http.Client{Timeout: 5 * time.Second}
	res, err := c.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(b), res.Header
}

func TestRun(t *testing.T) {
	for _, transport := range []string{config.TransportHTTPX, config.TransportNet} {
		t.Run(transport, func(t *testing.T) {
			h, err := Run(context.Background(), testConfig(transport), logging.Discard())
			require.NoError(t, err)
			base := "http://" + h.Addr()

			status, body, hdr := fetch(t, base+"/Alice")
			assert.Equal(t, 200, status)
			assert.Equal(t, "Hello Alice!", body)
			assert.Equal(t, "text/plain; charset=utf-8", hdr.Get("Content-Type"))
			assert.Len(t, hdr.Get("X-Request-Id"), 36)

			status, body, _ = fetch(t, base+"/")
			assert.Equal(t, 200, status)
			assert.Equal(t, "Hello World!", body)

			status, _, _ = fetch(t, base+"/a/b")
			assert.Equal(t, 404, status)

			assert.Eventually(t, func() bool { return h.Requests() == 3 }, time.Second, 10*time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, h.Shutdown(ctx))
			<-h.Done()
			assert.NoError(t, h.Err())

			// The socket is released.
			ln, err := net.Listen("tcp", h.Addr())
			require.NoError(t, err)
			ln.Close()
		})
	}
}

func TestRun_Gzip(t *testing.T) {
	for _, transport := range []string{config.TransportHTTPX, config.TransportNet} {
		t.Run(transport, func(t *testing.T) {
			cfg := testConfig(transport)
			cfg.Gzip = true
			h, err := Run(context.Background(), cfg, logging.Discard())
			require.NoError(t, err)
			defer h.Shutdown(context.Background())

			// The default client decompresses transparently.
			status, body, _ := fetch(t, "http://"+h.Addr()+"/Zo%C3%AB")
			assert.Equal(t, 200, status)
			assert.Equal(t, "Hello Zoë!", body)
		})
	}
}

func TestRun_BindError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	for _, transport := range []string{config.TransportHTTPX, config.TransportNet} {
		t.Run(transport, func(t *testing.T) {
			cfg := testConfig(transport)
			cfg.Addr = busy.Addr().String()
			h, err := Run(context.Background(), cfg, logging.Discard())
			assert.Nil(t, h)
			require.Error(t, err)
			var opErr *net.OpError
			assert.ErrorAs(t, err, &opErr)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig("pigeon")
	_, err := Run(context.Background(), cfg, nil)
	var cerr *config.Error
	assert.ErrorAs(t, err, &cerr)
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := Run(ctx, testConfig(config.TransportHTTPX), logging.Discard())
	require.NoError(t, err)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
	assert.NoError(t, h.Err())
	// A second Shutdown is a no-op.
	assert.NoError(t, h.Shutdown(context.Background()))
}

func TestRun_ShutdownDropsPartialRequest(t *testing.T) {
	h, err := Run(context.Background(), testConfig(config.TransportHTTPX), logging.Discard())
	require.NoError(t, err)

	// A client stalled mid-head has no request in flight yet.
	c, err := net.Dial("tcp", h.Addr())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("GET /Alice HTTP/1.1\r\nHost: x\r\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	c.SetReadDeadline(time.Now().Add(time.Second))
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err, "connection should be closed")
}
