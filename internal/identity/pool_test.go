package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextRotatesUserAgents(t *testing.T) {
	t.Parallel()

	pool := New(Config{UserAgents: []string{"ua-a", "ua-b"}})
	first := pool.Next()
	second := pool.Next()
	third := pool.Next()

	require.Equal(t, "ua-a", first.UserAgent)
	require.Equal(t, "ua-b", second.UserAgent)
	require.Equal(t, "ua-a", third.UserAgent)
	require.False(t, first.Proxied())
}

func TestNextFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	pool := New(Config{})
	id := pool.Next()
	require.NotEmpty(t, id.UserAgent)
	require.Empty(t, id.Proxy)
}

func TestJitterNeverRepeatsBackToBack(t *testing.T) {
	t.Parallel()

	pool := New(Config{
		UserAgents: []string{"ua-a", "ua-b", "ua-c"},
		Jitter:     true,
	})
	prev := pool.Next().UserAgent
	for i := 0; i < 50; i++ {
		cur := pool.Next().UserAgent
		require.NotEqual(t, prev, cur, "iteration %d", i)
		prev = cur
	}
}

func TestNextProxiedSkipsBadProxies(t *testing.T) {
	t.Parallel()

	pool := New(Config{
		UserAgents: []string{"ua"},
		Proxies:    []string{"http://p1:8080", "http://p2:8080"},
	})
	require.True(t, pool.HasProxy())

	id, ok := pool.NextProxied()
	require.True(t, ok)
	require.Equal(t, "http://p1:8080", id.Proxy)
	require.True(t, id.Proxied())

	pool.MarkBad(id)
	for i := 0; i < 3; i++ {
		next, ok := pool.NextProxied()
		require.True(t, ok)
		require.Equal(t, "http://p2:8080", next.Proxy)
	}
}

func TestNextProxiedExhausted(t *testing.T) {
	t.Parallel()

	pool := New(Config{
		UserAgents: []string{"ua"},
		Proxies:    []string{"http://p1:8080"},
	})
	id, ok := pool.NextProxied()
	require.True(t, ok)
	pool.MarkBad(id)

	_, ok = pool.NextProxied()
	require.False(t, ok)
	require.False(t, pool.HasProxy())
}

func TestMarkBadWithoutProxyIsNoop(t *testing.T) {
	t.Parallel()

	pool := New(Config{UserAgents: []string{"ua"}, Proxies: []string{"http://p1:8080"}})
	pool.MarkBad(pool.Next())
	require.True(t, pool.HasProxy())
}

func TestLoadLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "http://p1:8080\n\n# comment\n  http://p2:8080  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	lines, err := LoadLines(path)
	require.NoError(t, err)
	require.Equal(t, []string{"http://p1:8080", "http://p2:8080"}, lines)
}

func TestLoadLinesMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadLines(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}
