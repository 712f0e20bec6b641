package direct

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Header().Set("X-Test", "yes")
		_, _ = w.Write([]byte("<html>profile</html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), scholar.FetchRequest{
		URL:      srv.URL,
		Identity: scholar.Identity{UserAgent: "test-agent/1.0"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []byte("<html>profile</html>"), resp.Body)
	require.Equal(t, "yes", resp.Headers.Get("X-Test"))
	require.Equal(t, "test-agent/1.0", gotUA)
	require.False(t, resp.UsedHeadless)
	require.Greater(t, resp.Duration, time.Duration(0))
}

// Error statuses must surface alongside the response so the classifier can
// apply its status rules.
func TestFetchPreservesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), scholar.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, []byte("slow down"), resp.Body)
}

// The controller retries a soft-blocked URL with fresh identities, so the
// fetcher must allow revisiting the same URL.
func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		_, _ = fmt.Fprintf(w, "attempt %d", n)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	first, err := f.Fetch(context.Background(), scholar.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, []byte("attempt 1"), first.Body)

	second, err := f.Fetch(context.Background(), scholar.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, []byte("attempt 2"), second.Body)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

// A proxied identity must not change the routing of later direct attempts:
// the proxy is borrowed for one request, not installed process-wide.
func TestFetchProxyScopedToOneAttempt(t *testing.T) {
	t.Parallel()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("via-proxy"))
	}))
	defer proxy.Close()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("target"))
	}))
	defer target.Close()

	f := New(Config{Timeout: 5 * time.Second})
	proxied, err := f.Fetch(context.Background(), scholar.FetchRequest{
		URL:      target.URL + "/a",
		Identity: scholar.Identity{Proxy: proxy.URL},
	})
	require.NoError(t, err)
	require.Equal(t, []byte("via-proxy"), proxied.Body)

	direct, err := f.Fetch(context.Background(), scholar.FetchRequest{
		URL: target.URL + "/b",
	})
	require.NoError(t, err)
	require.Equal(t, []byte("target"), direct.Body)
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), scholar.FetchRequest{
		URL: "http://127.0.0.1:1/nothing-here",
	})
	require.Error(t, err)
	require.Zero(t, resp.StatusCode)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := New(Config{Timeout: 10 * time.Second})
	_, err := f.Fetch(ctx, scholar.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchInvalidProxy(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), scholar.FetchRequest{
		URL:      "http://example.org",
		Identity: scholar.Identity{Proxy: "://not-a-proxy"},
	})
	require.Error(t, err)
}
