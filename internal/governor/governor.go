// Package governor implements the process-wide soft-block accountant. One
// instance is shared by every concurrent fetch path in a run; when too many
// soft blocks accumulate in the sliding window it pauses all of them at once,
// on the premise that the remote protection is IP-wide, not request-specific.
package governor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// Config controls governor policy.
type Config struct {
	// Enabled gates the global pause entirely; when false soft blocks are
	// recorded but never halt the run.
	Enabled bool
	// Threshold is the number of soft blocks inside Window that triggers a
	// pause.
	Threshold int
	// Window is the sliding window over which soft blocks are counted.
	Window time.Duration
	// Pause is the cooldown applied once Threshold is exceeded.
	Pause time.Duration
}

// Notifier observes pause transitions. PauseEnded fires from whichever
// waiter first observes the expired pause, so the end event can lag the
// actual expiry by one clearance check.
type Notifier interface {
	PauseStarted(until time.Time)
	PauseEnded(dur time.Duration)
}

// Governor tracks recent soft blocks and enforces the global cooldown.
type Governor struct {
	mu         sync.Mutex
	cfg        Config
	clock      scholar.Clock
	logger     *zap.Logger
	notifier   Notifier
	blockTimes []time.Time
	pauseUntil time.Time
	pauseStart time.Time
	announced  bool
	pauses     int
}

// New constructs a Governor. A nil clock selects the system clock.
func New(cfg Config, clock scholar.Clock, logger *zap.Logger) *Governor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Pause <= 0 {
		cfg.Pause = 5 * time.Minute
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{cfg: cfg, clock: clock, logger: logger}
}

// SetNotifier installs a pause observer. Call before the run starts.
func (g *Governor) SetNotifier(n Notifier) {
	g.mu.Lock()
	g.notifier = n
	g.mu.Unlock()
}

// RecordSoftBlock registers one soft-block signal. Crossing the window
// threshold arms the global pause and resets the count.
func (g *Governor) RecordSoftBlock() {
	g.mu.Lock()

	now := g.clock.Now()
	g.blockTimes = append(g.pruneLocked(now), now)
	if !g.cfg.Enabled || len(g.blockTimes) <= g.cfg.Threshold {
		g.mu.Unlock()
		return
	}
	if now.Before(g.pauseUntil) {
		// Already paused; don't extend on blocks recorded by in-flight
		// attempts that started before the pause.
		g.mu.Unlock()
		return
	}
	g.pauseUntil = now.Add(g.cfg.Pause)
	g.pauseStart = now
	g.announced = true
	g.blockTimes = nil
	g.pauses++
	notifier, until := g.notifier, g.pauseUntil
	g.mu.Unlock()

	g.logger.Warn("soft-block threshold exceeded, pausing all fetches",
		zap.Int("threshold", g.cfg.Threshold),
		zap.Duration("pause", g.cfg.Pause),
		zap.Time("until", until),
	)
	if notifier != nil {
		notifier.PauseStarted(until)
	}
}

// RecordSuccess decays the recent soft-block count by one.
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockTimes = g.pruneLocked(g.clock.Now())
	if len(g.blockTimes) > 0 {
		g.blockTimes = g.blockTimes[1:]
	}
}

// AwaitClearance suspends the caller until no pause is active. Every fetch
// path calls this before starting an attempt.
func (g *Governor) AwaitClearance(ctx context.Context) error {
	for {
		wait := g.remaining()
		if wait <= 0 {
			return nil
		}
		g.logger.Info("waiting for governor pause to clear", zap.Duration("remaining", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("await governor clearance: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// Paused reports whether a pause is currently active and when it lifts.
func (g *Governor) Paused() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	return now.Before(g.pauseUntil), g.pauseUntil
}

// Pauses returns how many cooldowns have been triggered this run.
func (g *Governor) Pauses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pauses
}

func (g *Governor) remaining() time.Duration {
	g.mu.Lock()
	if !g.cfg.Enabled {
		g.mu.Unlock()
		return 0
	}
	now := g.clock.Now()
	wait := g.pauseUntil.Sub(now)
	var (
		notifier Notifier
		elapsed  time.Duration
	)
	if wait <= 0 && g.announced {
		// First waiter past the expiry reports the pause as over.
		g.announced = false
		notifier = g.notifier
		elapsed = now.Sub(g.pauseStart)
	}
	g.mu.Unlock()

	if notifier != nil {
		notifier.PauseEnded(elapsed)
	}
	return wait
}

func (g *Governor) pruneLocked(now time.Time) []time.Time {
	cutoff := now.Add(-g.cfg.Window)
	kept := g.blockTimes[:0]
	for _, t := range g.blockTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
