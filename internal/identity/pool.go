// Package identity manages the rotating user-agent/proxy pool.
package identity

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// defaultUserAgents backs the pool when no list is supplied. A handful of
// current desktop browser strings is enough to break a fixed fingerprint.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// Config controls pool construction.
type Config struct {
	UserAgents []string
	Proxies    []string
	// Jitter randomizes the rotation step so the cadence of identity reuse
	// is not a fixed detectable period.
	Jitter bool
}

// Pool hands out identities round-robin. Concurrent callers may receive the
// same identity; rotation is a fingerprinting mitigation, not a lock.
type Pool struct {
	mu         sync.Mutex
	userAgents []string
	proxies    []string
	badProxies map[string]struct{}
	uaIdx      int
	proxyIdx   int
	jitter     bool
	rng        *rand.Rand
}

// New builds a Pool, falling back to the built-in user-agent set when the
// supplied list is empty.
func New(cfg Config) *Pool {
	uas := make([]string, 0, len(cfg.UserAgents))
	for _, ua := range cfg.UserAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			uas = append(uas, ua)
		}
	}
	if len(uas) == 0 {
		uas = append(uas, defaultUserAgents...)
	}
	proxies := make([]string, 0, len(cfg.Proxies))
	for _, p := range cfg.Proxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return &Pool{
		userAgents: uas,
		proxies:    proxies,
		badProxies: make(map[string]struct{}),
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(rand.Int63())), //nolint:gosec // cadence jitter, not crypto
	}
}

// Next returns the next non-proxied identity in rotation.
func (p *Pool) Next() scholar.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return scholar.Identity{UserAgent: p.nextUserAgentLocked()}
}

// NextProxied returns an identity routed through the next healthy proxy.
// The second return is false when no usable proxy remains.
func (p *Pool) NextProxied() (scholar.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proxy, ok := p.nextProxyLocked()
	if !ok {
		return scholar.Identity{}, false
	}
	return scholar.Identity{UserAgent: p.nextUserAgentLocked(), Proxy: proxy}, true
}

// MarkBad demotes the identity's proxy so it is skipped on future rotations.
// Marking a proxy-less identity is a no-op.
func (p *Pool) MarkBad(id scholar.Identity) {
	if id.Proxy == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.badProxies[id.Proxy] = struct{}{}
}

// HasProxy reports whether at least one healthy proxy is available.
func (p *Pool) HasProxy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, proxy := range p.proxies {
		if _, bad := p.badProxies[proxy]; !bad {
			return true
		}
	}
	return false
}

func (p *Pool) nextUserAgentLocked() string {
	ua := p.userAgents[p.uaIdx%len(p.userAgents)]
	p.uaIdx += p.stepLocked()
	return ua
}

func (p *Pool) nextProxyLocked() (string, bool) {
	for range p.proxies {
		proxy := p.proxies[p.proxyIdx%len(p.proxies)]
		p.proxyIdx++
		if _, bad := p.badProxies[proxy]; !bad {
			return proxy, true
		}
	}
	return "", false
}

func (p *Pool) stepLocked() int {
	if !p.jitter || len(p.userAgents) < 3 {
		return 1
	}
	// Step 1 or 2 so the same agent never repeats back to back but the
	// rotation period stays irregular.
	return 1 + p.rng.Intn(2)
}

// LoadLines reads a newline-delimited list file, skipping blanks and
// comment lines. Used for both user-agent and proxy lists.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied list file
	if err != nil {
		return nil, fmt.Errorf("open list file %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list file %s: %w", path, err)
	}
	return lines, nil
}
