// Package backoff computes retry delays for classified fetch failures.
package backoff

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Policy holds the delay schedule for the two failure classes: soft blocks
// back off exponentially with jitter, hard failures linearly.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	HardDelay time.Duration
}

// NewPolicy builds a policy, applying defaults for unset fields.
func NewPolicy(base, max, hard time.Duration) Policy {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	if hard <= 0 {
		hard = 2 * time.Second
	}
	return Policy{BaseDelay: base, MaxDelay: max, HardDelay: hard}
}

// SoftBlockDelay returns base*2^attempt plus random jitter, capped at MaxDelay.
// attempt is zero-based.
func (p Policy) SoftBlockDelay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

// HardFailureDelay returns the fixed linear delay for transient non-block
// failures: hard*(attempt+1).
func (p Policy) HardFailureDelay(attempt int) time.Duration {
	d := p.HardDelay * time.Duration(attempt+1)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RandomDelay picks a uniform duration in [min, max], the politeness gap
// inserted before every attempt.
func RandomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + randomJitter(max-min)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
