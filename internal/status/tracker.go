// Package status exposes a small HTTP surface for watching a run: health,
// a JSON snapshot of run counters, and Prometheus metrics.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/citemetric/scholarcrawl/internal/progress"
)

// Snapshot is the point-in-time view served at /status.
type Snapshot struct {
	RunID             string    `json:"run_id,omitempty"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	ProfilesStarted   int       `json:"profiles_started"`
	ProfilesSucceeded int       `json:"profiles_succeeded"`
	ProfilesFailed    int       `json:"profiles_failed"`
	FetchesDone       int       `json:"fetches_done"`
	SoftBlocks        int       `json:"soft_blocks"`
	Escalations       int       `json:"escalations"`
	GiveUps           int       `json:"give_ups"`
	Pauses            int       `json:"pauses"`
	Paused            bool      `json:"paused"`
	RunDone           bool      `json:"run_done"`
}

// Tracker is a progress.Sink that folds events into run counters.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Consume folds the batch into the snapshot.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			t.snap.RunID = evt.RunUUID().String()
			t.snap.StartedAt = evt.TS
		case progress.StageRunDone:
			t.snap.RunDone = true
		case progress.StageProfileStart:
			t.snap.ProfilesStarted++
		case progress.StageProfileDone:
			t.snap.ProfilesSucceeded++
		case progress.StageProfileError:
			t.snap.ProfilesFailed++
		case progress.StageFetchDone:
			t.snap.FetchesDone++
		case progress.StageSoftBlock:
			t.snap.SoftBlocks++
		case progress.StageEscalate:
			t.snap.Escalations++
		case progress.StageGiveUp:
			t.snap.GiveUps++
		case progress.StagePauseStart:
			t.snap.Pauses++
			t.snap.Paused = true
		case progress.StagePauseEnd:
			t.snap.Paused = false
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (t *Tracker) Close(context.Context) error {
	return nil
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}
