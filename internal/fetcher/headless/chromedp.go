// Package headless contains the rendered-transport Fetcher backed by a real
// browser. It is slower than the direct fetcher but survives JS-gated pages
// and presents a harder-to-fingerprint client.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// Visible disables headless mode for debugging sessions.
	Visible           bool
	MaxParallel       int
	NavigationTimeout time.Duration
}

// Fetcher implements scholar.Fetcher using chromedp. Allocators are created
// lazily per proxy endpoint, since the proxy is a browser-level setting.
type Fetcher struct {
	cfg     Config
	limiter chan struct{}

	mu         sync.Mutex
	allocators map[string]allocator
}

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a chromedp-backed fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Fetcher{
		cfg:        cfg,
		limiter:    limiter,
		allocators: make(map[string]allocator),
	}, nil
}

// Close cancels every allocator context.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, alloc := range f.allocators {
		alloc.cancel()
		delete(f.allocators, key)
	}
}

// Fetch navigates with a browser tab and returns the fully rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request scholar.FetchRequest) (scholar.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return scholar.FetchResponse{}, err
	}
	defer f.release()

	allocCtx := f.allocatorFor(request.Identity.Proxy)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	timeout := request.Timeout
	if timeout <= 0 || timeout > f.cfg.NavigationTimeout {
		timeout = f.cfg.NavigationTimeout
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	stop := forwardCancel(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runBrowser(taskCtx, request)
	if err != nil {
		return scholar.FetchResponse{}, err
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	return scholar.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) allocatorFor(proxy string) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if alloc, ok := f.allocators[proxy]; ok {
		return alloc.ctx
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !f.cfg.Visible),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	ctx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	f.allocators[proxy] = allocator{ctx: ctx, cancel: cancel}
	return ctx
}

func (f *Fetcher) runBrowser(ctx context.Context, request scholar.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(request.Identity.UserAgent),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.headers = headers
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, cloneHeader(m.headers), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
