// Package fetchctl drives the guarded fetch pipeline: identity selection,
// governor clearance, politeness delays, outcome classification, and the
// retry/escalation state machine for one logical fetch request.
package fetchctl

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/citemetric/scholarcrawl/internal/backoff"
	"github.com/citemetric/scholarcrawl/internal/progress"
	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// Config controls controller behavior. Limits count attempts, not retries:
// BlockRetryLimit=3 means a path that only soft-blocks is tried three times
// per identity tier before escalating or giving up.
type Config struct {
	BlockRetryLimit int
	HardRetryLimit  int
	DelayMin        time.Duration
	DelayMax        time.Duration
	FetchTimeout    time.Duration
	HostQPS         float64
}

func (c Config) withDefaults() Config {
	if c.BlockRetryLimit <= 0 {
		c.BlockRetryLimit = 3
	}
	if c.HardRetryLimit <= 0 {
		c.HardRetryLimit = 2
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 2 * time.Second
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin + 3*time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	return c
}

// Controller executes guarded fetches. One instance is shared by every
// concurrent fetch path in a run; per-request state lives on the stack.
type Controller struct {
	cfg        Config
	fetcher    scholar.Fetcher
	classifier scholar.Classifier
	pool       scholar.IdentityPool
	governor   scholar.Governor
	policy     backoff.Policy
	limiter    *hostLimiter
	emitter    progress.Emitter
	runID      [16]byte
	logger     *zap.Logger
}

// New constructs a Controller.
func New(
	cfg Config,
	fetcher scholar.Fetcher,
	classifier scholar.Classifier,
	pool scholar.IdentityPool,
	gov scholar.Governor,
	policy backoff.Policy,
	emitter progress.Emitter,
	runID [16]byte,
	logger *zap.Logger,
) *Controller {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:        cfg.withDefaults(),
		fetcher:    fetcher,
		classifier: classifier,
		pool:       pool,
		governor:   gov,
		policy:     policy,
		limiter:    newHostLimiter(cfg.HostQPS),
		emitter:    emitter,
		runID:      runID,
		logger:     logger,
	}
}

// requestState is the tagged state threaded through one logical fetch
// request's control loop.
type requestState struct {
	attempt     int
	hardAttempt int
	escalated   bool
	identity    scholar.Identity
}

// Fetch drives one URL to success or a terminal error. Terminal errors are
// *scholar.GiveUpError, *scholar.NotFoundError, or a context error.
func (c *Controller) Fetch(ctx context.Context, url string) (scholar.FetchResponse, error) {
	var st requestState
	for {
		if err := c.governor.AwaitClearance(ctx); err != nil {
			return scholar.FetchResponse{}, err
		}
		if err := c.limiter.Wait(ctx, url); err != nil {
			return scholar.FetchResponse{}, err
		}
		if err := sleepCtx(ctx, backoff.RandomDelay(c.cfg.DelayMin, c.cfg.DelayMax)); err != nil {
			return scholar.FetchResponse{}, err
		}

		resp, outcome := c.attempt(ctx, url, &st)
		if ctx.Err() != nil {
			return scholar.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}

		switch outcome.Kind {
		case scholar.OutcomeSuccess:
			c.governor.RecordSuccess()
			resp.Body = outcome.Body
			return resp, nil
		case scholar.OutcomeSoftBlock:
			if done, err := c.handleSoftBlock(ctx, url, &st, outcome); done {
				return scholar.FetchResponse{}, err
			}
		case scholar.OutcomeHardFailure, scholar.OutcomeTimeout:
			if done, err := c.handleHardFailure(ctx, url, &st, outcome); done {
				return scholar.FetchResponse{}, err
			}
		}
	}
}

func (c *Controller) attempt(ctx context.Context, url string, st *requestState) (scholar.FetchResponse, scholar.FetchOutcome) {
	st.identity = c.selectIdentity(st)
	st.attempt++

	c.emit(progress.Event{
		Stage:   progress.StageFetchStart,
		URL:     url,
		Attempt: st.attempt,
	})
	start := time.Now()
	resp, err := c.fetcher.Fetch(ctx, scholar.FetchRequest{
		URL:      url,
		Identity: st.identity,
		Timeout:  c.cfg.FetchTimeout,
	})
	outcome := c.classifier.Classify(resp, err)

	evt := progress.Event{
		Stage:   progress.StageFetchDone,
		URL:     url,
		Attempt: st.attempt,
		Dur:     time.Since(start),
		Note:    string(outcome.Kind),
	}
	if outcome.StatusCode > 0 {
		evt.StatusClass = progress.ClassifyStatus(outcome.StatusCode)
	} else {
		evt.StatusClass = progress.StatusOther
	}
	c.emit(evt)
	return resp, outcome
}

func (c *Controller) selectIdentity(st *requestState) scholar.Identity {
	if st.escalated {
		if id, ok := c.pool.NextProxied(); ok {
			return id
		}
		// Every proxy was demoted mid-sequence; fall back to direct.
	}
	return c.pool.Next()
}

// handleSoftBlock returns done=true with the terminal error once the retry
// budget is spent on both identity tiers.
func (c *Controller) handleSoftBlock(ctx context.Context, url string, st *requestState, outcome scholar.FetchOutcome) (bool, error) {
	c.governor.RecordSoftBlock()
	c.emit(progress.Event{
		Stage:   progress.StageSoftBlock,
		URL:     url,
		Attempt: st.attempt,
		Note:    outcome.Reason,
	})
	c.logger.Warn("soft block detected",
		zap.String("url", url),
		zap.Int("attempt", st.attempt),
		zap.String("reason", outcome.Reason),
	)

	if st.attempt >= c.cfg.BlockRetryLimit {
		if !st.escalated && c.pool.HasProxy() {
			// One escalation per logical request: switch to a proxied
			// identity and restart the attempt budget.
			st.escalated = true
			st.attempt = 0
			c.emit(progress.Event{Stage: progress.StageEscalate, URL: url, Note: "switching to proxied identity"})
			c.logger.Info("escalating to proxied identity", zap.String("url", url))
			return false, nil
		}
		return c.giveUp(url, st, outcome)
	}
	return false, sleepCtx(ctx, c.policy.SoftBlockDelay(st.attempt))
}

func (c *Controller) handleHardFailure(ctx context.Context, url string, st *requestState, outcome scholar.FetchOutcome) (bool, error) {
	if outcome.StatusCode == http.StatusNotFound {
		// Permanent; retrying a 404 only burns the politeness budget.
		return true, &scholar.NotFoundError{URL: url}
	}
	if st.identity.Proxied() && outcome.Kind == scholar.OutcomeTimeout {
		c.pool.MarkBad(st.identity)
	}
	st.hardAttempt++
	if st.hardAttempt >= c.cfg.HardRetryLimit {
		return c.giveUp(url, st, outcome)
	}
	return false, sleepCtx(ctx, c.policy.HardFailureDelay(st.hardAttempt))
}

func (c *Controller) giveUp(url string, st *requestState, outcome scholar.FetchOutcome) (bool, error) {
	c.emit(progress.Event{
		Stage:   progress.StageGiveUp,
		URL:     url,
		Attempt: st.attempt,
		Note:    outcome.Reason,
	})
	c.logger.Warn("giving up on url",
		zap.String("url", url),
		zap.Int("attempts", st.attempt),
		zap.String("kind", string(outcome.Kind)),
	)
	return true, &scholar.GiveUpError{URL: url, Attempts: st.attempt, Last: outcome}
}

func (c *Controller) emit(evt progress.Event) {
	evt.RunID = c.runID
	evt.TS = time.Now().UTC()
	c.emitter.Emit(evt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
