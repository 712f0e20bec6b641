package fetchctl

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citemetric/scholarcrawl/internal/backoff"
	"github.com/citemetric/scholarcrawl/internal/progress"
	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// scriptedPipeline pairs a fetcher that records identities with a classifier
// that replays a fixed outcome sequence.
type scriptedPipeline struct {
	mu         sync.Mutex
	outcomes   []scholar.FetchOutcome
	calls      int
	identities []scholar.Identity
}

func (s *scriptedPipeline) Fetch(_ context.Context, req scholar.FetchRequest) (scholar.FetchResponse, error) {
	s.mu.Lock()
	s.identities = append(s.identities, req.Identity)
	s.mu.Unlock()
	return scholar.FetchResponse{URL: req.URL, StatusCode: http.StatusOK}, nil
}

func (s *scriptedPipeline) Classify(resp scholar.FetchResponse, _ error) scholar.FetchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outcomes[s.calls%len(s.outcomes)]
	if s.calls < len(s.outcomes) {
		out = s.outcomes[s.calls]
	}
	s.calls++
	if out.Kind == scholar.OutcomeSuccess && out.Body == nil {
		out.Body = []byte("page")
	}
	return out
}

type stubPool struct {
	mu       sync.Mutex
	proxies  bool
	marked   []scholar.Identity
	proxyUse int
}

func (p *stubPool) Next() scholar.Identity {
	return scholar.Identity{UserAgent: "direct-ua"}
}

func (p *stubPool) NextProxied() (scholar.Identity, bool) {
	if !p.proxies {
		return scholar.Identity{}, false
	}
	p.mu.Lock()
	p.proxyUse++
	p.mu.Unlock()
	return scholar.Identity{UserAgent: "proxy-ua", Proxy: "http://proxy:8080"}, true
}

func (p *stubPool) MarkBad(id scholar.Identity) {
	p.mu.Lock()
	p.marked = append(p.marked, id)
	p.mu.Unlock()
}

func (p *stubPool) HasProxy() bool { return p.proxies }

type stubGovernor struct {
	mu        sync.Mutex
	blocks    int
	successes int
}

func (g *stubGovernor) RecordSoftBlock() {
	g.mu.Lock()
	g.blocks++
	g.mu.Unlock()
}

func (g *stubGovernor) RecordSuccess() {
	g.mu.Lock()
	g.successes++
	g.mu.Unlock()
}

func (g *stubGovernor) AwaitClearance(context.Context) error { return nil }

func testController(t *testing.T, pipeline *scriptedPipeline, pool *stubPool, gov *stubGovernor, cfg Config) *Controller {
	t.Helper()
	if cfg.DelayMin == 0 {
		cfg.DelayMin = time.Millisecond
		cfg.DelayMax = 2 * time.Millisecond
	}
	policy := backoff.NewPolicy(time.Millisecond, 2*time.Millisecond, time.Millisecond)
	return New(cfg, pipeline, pipeline, pool, gov, policy, progress.Nop{}, [16]byte{1}, nil)
}

func softBlock() scholar.FetchOutcome {
	return scholar.FetchOutcome{Kind: scholar.OutcomeSoftBlock, Reason: "captcha", StatusCode: 200}
}

func success() scholar.FetchOutcome {
	return scholar.FetchOutcome{Kind: scholar.OutcomeSuccess, StatusCode: 200}
}

func TestFetchSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{success()}}
	pool := &stubPool{}
	gov := &stubGovernor{}
	c := testController(t, pipeline, pool, gov, Config{})

	resp, err := c.Fetch(context.Background(), "https://scholar.google.com/citations?user=abc")
	require.NoError(t, err)
	require.Equal(t, []byte("page"), resp.Body)
	require.Equal(t, 1, gov.successes)
	require.Len(t, pipeline.identities, 1)
	require.False(t, pipeline.identities[0].Proxied())
}

func TestFetchEscalatesAfterBlockBudget(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{
		softBlock(), softBlock(), success(),
	}}
	pool := &stubPool{proxies: true}
	gov := &stubGovernor{}
	c := testController(t, pipeline, pool, gov, Config{BlockRetryLimit: 2})

	resp, err := c.Fetch(context.Background(), "https://scholar.google.com/citations?user=abc")
	require.NoError(t, err)
	require.Equal(t, []byte("page"), resp.Body)

	// Two direct attempts exhaust the budget, the third rides the proxy.
	require.Len(t, pipeline.identities, 3)
	require.False(t, pipeline.identities[0].Proxied())
	require.False(t, pipeline.identities[1].Proxied())
	require.True(t, pipeline.identities[2].Proxied())
	require.Equal(t, 2, gov.blocks)
	require.Equal(t, 1, gov.successes)
}

func TestFetchGivesUpWithoutProxy(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{
		softBlock(), softBlock(),
	}}
	pool := &stubPool{proxies: false}
	gov := &stubGovernor{}
	c := testController(t, pipeline, pool, gov, Config{BlockRetryLimit: 2})

	_, err := c.Fetch(context.Background(), "https://scholar.google.com/citations?user=abc")
	var giveUp *scholar.GiveUpError
	require.ErrorAs(t, err, &giveUp)
	require.Equal(t, 2, giveUp.Attempts)
	require.Equal(t, scholar.OutcomeSoftBlock, giveUp.Last.Kind)
	require.Len(t, pipeline.identities, 2)
}

func TestFetchGivesUpAfterProxiedBudget(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{
		softBlock(), softBlock(), softBlock(), softBlock(),
	}}
	pool := &stubPool{proxies: true}
	gov := &stubGovernor{}
	c := testController(t, pipeline, pool, gov, Config{BlockRetryLimit: 2})

	_, err := c.Fetch(context.Background(), "https://scholar.google.com/citations?user=abc")
	var giveUp *scholar.GiveUpError
	require.ErrorAs(t, err, &giveUp)

	// Budget restarts once on escalation, never twice.
	require.Len(t, pipeline.identities, 4)
	require.True(t, pipeline.identities[2].Proxied())
	require.True(t, pipeline.identities[3].Proxied())
	require.Equal(t, 2, giveUp.Attempts)
}

func TestFetch404IsPermanent(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{
		{Kind: scholar.OutcomeHardFailure, Reason: "status 404", StatusCode: http.StatusNotFound},
	}}
	pool := &stubPool{proxies: true}
	gov := &stubGovernor{}
	c := testController(t, pipeline, pool, gov, Config{})

	_, err := c.Fetch(context.Background(), "https://scholar.google.com/citations?user=gone")
	var notFound *scholar.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Len(t, pipeline.identities, 1, "404 must not be retried")
}

func TestFetchHardFailureBudget(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{
		{Kind: scholar.OutcomeHardFailure, Reason: "status 500", StatusCode: 500},
		{Kind: scholar.OutcomeHardFailure, Reason: "status 500", StatusCode: 500},
	}}
	pool := &stubPool{}
	gov := &stubGovernor{}
	c := testController(t, pipeline, pool, gov, Config{HardRetryLimit: 2})

	_, err := c.Fetch(context.Background(), "https://scholar.google.com/citations?user=abc")
	var giveUp *scholar.GiveUpError
	require.ErrorAs(t, err, &giveUp)
	require.Len(t, pipeline.identities, 2)
	require.Zero(t, gov.blocks, "hard failures are not soft blocks")
}

func TestFetchMarksBadProxyOnTimeout(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{
		softBlock(),
		{Kind: scholar.OutcomeTimeout, Reason: "i/o timeout"},
	}}
	pool := &stubPool{proxies: true}
	gov := &stubGovernor{}
	c := testController(t, pipeline, pool, gov, Config{BlockRetryLimit: 1, HardRetryLimit: 1})

	_, err := c.Fetch(context.Background(), "https://scholar.google.com/citations?user=abc")
	require.Error(t, err)
	require.Len(t, pool.marked, 1)
	require.Equal(t, "http://proxy:8080", pool.marked[0].Proxy)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	pipeline := &scriptedPipeline{outcomes: []scholar.FetchOutcome{success()}}
	c := testController(t, pipeline, &stubPool{}, &stubGovernor{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, "https://scholar.google.com/citations?user=abc")
	require.ErrorIs(t, err, context.Canceled)
}
