// Package direct implements the fast-path Fetcher using gocolly.
package direct

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
}

// Fetcher implements scholar.Fetcher using a Colly collector. Each attempt
// gets its own collector (with URL revisits allowed, since the controller
// retries the same URL) and, when the identity carries a proxy, its own
// transport, so the borrowed identity applies to exactly one request.
type Fetcher struct {
	cfg       Config
	transport *http.Transport
}

// New builds a Fetcher with a pooled transport shared by direct attempts.
func New(cfg Config) *Fetcher {
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// Fetch executes a single HTTP GET carrying the request identity. It never
// retries; retry decisions belong to the fetch controller.
func (f *Fetcher) Fetch(ctx context.Context, request scholar.FetchRequest) (scholar.FetchResponse, error) {
	var (
		result   scholar.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector, err := f.buildCollector(request, start, &result, &fetchErr)
	if err != nil {
		return scholar.FetchResponse{}, err
	}
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request scholar.FetchRequest,
	start time.Time,
	result *scholar.FetchResponse,
	fetchErr *error,
) (*colly.Collector, error) {
	collector := colly.NewCollector(colly.AllowURLRevisit())
	collector.IgnoreRobotsTxt = true
	if request.Identity.UserAgent != "" {
		collector.UserAgent = request.Identity.UserAgent
	}

	timeout := request.Timeout
	if timeout == 0 {
		timeout = f.cfg.Timeout
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	// Proxied attempts get a transport of their own. Mutating the shared
	// transport would route later direct attempts through the proxy too.
	transport := f.transport
	if request.Identity.Proxy != "" {
		proxyURL, err := url.Parse(request.Identity.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %s: %w", request.Identity.Proxy, err)
		}
		if proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("parse proxy %s: missing scheme or host", request.Identity.Proxy)
		}
		proxied := f.transport.Clone()
		proxied.Proxy = http.ProxyURL(proxyURL)
		transport = proxied
	}
	collector.WithTransport(transport)

	collector.OnResponse(func(r *colly.Response) {
		*result = scholar.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			// Keep the status so the classifier can distinguish a 429
			// from a transport failure.
			*result = scholar.FetchResponse{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Headers:    r.Headers.Clone(),
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
			}
		}
		*fetchErr = err
	})
	return collector, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("direct fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("response for %s: %w", url, *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
