// Package progress defines the event structures emitted by the scrape
// pipeline and the hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageProfileStart Stage = "PROFILE_START"
	StageProfileDone  Stage = "PROFILE_DONE"
	StageProfileError Stage = "PROFILE_ERROR"
	StageFetchStart   Stage = "FETCH_START"
	StageFetchDone    Stage = "FETCH_DONE"
	StageSoftBlock    Stage = "SOFT_BLOCK"
	StageEscalate     Stage = "ESCALATE"
	StagePauseStart   Stage = "PAUSE_START"
	StagePauseEnd     Stage = "PAUSE_END"
	StageGiveUp       Stage = "GIVE_UP"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of scrape progress.
type Event struct {
	// RunID identifies the batch run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// UserID scopes profile and fetch events to one Scholar profile.
	UserID string
	// URL is the optional page URL.
	URL string
	// Attempt is the zero-based attempt number for fetch-path events.
	Attempt int
	// StatusClass groups HTTP response codes for FETCH_DONE events.
	StatusClass StatusClass
	// Dur captures latency for fetches, pauses, and run/profile completions.
	Dur time.Duration
	// Note attaches low-volume context such as error text or block reasons.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StagePauseStart, StagePauseEnd:
	case StageProfileStart, StageProfileDone, StageProfileError:
		if e.UserID == "" {
			return errors.New("profile events require user id")
		}
	case StageFetchStart, StageSoftBlock, StageEscalate, StageGiveUp:
		if e.URL == "" {
			return errors.New("fetch events require url")
		}
	case StageFetchDone:
		if e.URL == "" {
			return errors.New("fetch done requires url")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
