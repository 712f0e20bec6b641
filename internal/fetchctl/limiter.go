package fetchctl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter manages per-host token buckets so every fetch path shares one
// politeness budget per target host.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

func newHostLimiter(qps float64) *hostLimiter {
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      limit,
		burst:    1,
	}
}

// Wait blocks until a token is available for the URL's host.
func (l *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.qps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
