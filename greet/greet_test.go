package greet

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqx0.com/go/greeter/httpx"
)

var greetCases = []struct {
	target string
	status int
	body   string
}{
	{"/", 200, "Hello World!"},
	{"/Alice", 200, "Hello Alice!"},
	{"/Alice?lang=fr", 200, "Hello Alice!"},
	{"/J%C3%BCrgen", 200, "Hello Jürgen!"},
	{"/%E4%B8%96%E7%95%8C", 200, "Hello 世界!"},
	{"/Mary%20Jane", 200, "Hello Mary Jane!"},
	{"/a%2Fb", 200, "Hello a/b!"},
	{"/%FF", 200, "Hello %FF!"},
	{"/caf%E9", 200, "Hello caf%E9!"},
	{"/Alice/", 404, "not found"},
	{"/Alice/Bob", 404, "not found"},
	{"//", 404, "not found"},
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Hello Alice!", Greeting("Alice"))
	assert.Equal(t, "Hello World!", Greeting(""))
	assert.Equal(t, "Hello  !", Greeting(" "))
	assert.Equal(t, "Hello Zoë!", Greeting("Zoë"))
}

func TestRouter(t *testing.T) {
	rt := NewRouter()
	for _, tt := range greetCases {
		t.Run(tt.target, func(t *testing.T) {
			res := rt.Request("GET", tt.target, nil)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.body, res.String())
			if tt.status == 200 {
				assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))
				assert.Equal(t, fmt.Sprint(len(tt.body)), res.Header.Get("Content-Length"))
			}
		})
	}
}

func TestRouter_BodyIsUTF8(t *testing.T) {
	rt := NewRouter()
	for _, target := range []string{"/%FF", "/%C3", "/%ED%A0%80", "/J%C3%BCrgen"} {
		body := rt.Request("GET", target, nil).String()
		assert.True(t, utf8.ValidString(body), "%s answered %q", target, body)
	}
}

func TestRouter_MethodsAndHead(t *testing.T) {
	rt := NewRouter()

	res := rt.Request("HEAD", "/Alice", nil)
	assert.Equal(t, 200, res.StatusCode)
	assert.Empty(t, res.Body)
	assert.Equal(t, "12", res.Header.Get("Content-Length"))

	res = rt.Request("POST", "/Alice", nil)
	assert.Equal(t, 405, res.StatusCode)
	assert.Equal(t, "GET, HEAD", res.Header.Get("Allow"))
}

func TestRouter_Idempotent(t *testing.T) {
	rt := NewRouter()
	first := rt.Request("GET", "/Alice", nil).String()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, rt.Request("GET", "/Alice", nil).String())
	}
}

func TestMuxRouter(t *testing.T) {
	srv := httptest.NewServer(NewMuxRouter())
	defer srv.Close()

	for _, tt := range greetCases {
		t.Run(tt.target, func(t *testing.T) {
			res, err := srv.Client().Get(srv.URL + tt.target)
			require.NoError(t, err)
			defer res.Body.Close()
			b, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.body, string(b))
		})
	}

	res, err := srv.Client().Post(srv.URL+"/Alice", "text/plain", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, 405, res.StatusCode)
	assert.Equal(t, "GET, HEAD", res.Header.Get("Allow"))
}

// concurrentGreetings fires n requests with distinct names at base and
// checks every response matches its own request.
func concurrentGreetings(t *testing.T, base string, n int) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user%03d", i)
			res, err := client.Get(base + "/" + name)
			if err != nil {
				errs <- err
				return
			}
			defer res.Body.Close()
			b, err := io.ReadAll(res.Body)
			if err != nil {
				errs <- err
				return
			}
			if want := "Hello " + name + "!"; string(b) != want {
				errs <- fmt.Errorf("got %q, want %q", b, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestConcurrent_Httpx(t *testing.T) {
	s := &httpx.Server{Addr: "127.0.0.1:0", Handler: NewRouter()}
	require.NoError(t, s.Listen())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()
	defer func() {
		s.Close()
		<-done
	}()

	concurrentGreetings(t, "http://"+s.ListenerAddr().String(), 64)
}

func TestConcurrent_Mux(t *testing.T) {
	srv := httptest.NewServer(NewMuxRouter())
	defer srv.Close()
	concurrentGreetings(t, srv.URL, 64)
}
