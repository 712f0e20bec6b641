package scholar

import "fmt"

// OutcomeKind tags a classified fetch result.
type OutcomeKind string

// Outcome kinds produced by the block detector.
const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeSoftBlock   OutcomeKind = "soft_block"
	OutcomeHardFailure OutcomeKind = "hard_failure"
	OutcomeTimeout     OutcomeKind = "timeout"
)

// FetchOutcome is the tagged variant a classifier produces from a raw fetch
// result. Body is populated only for OutcomeSuccess.
type FetchOutcome struct {
	Kind       OutcomeKind
	Reason     string
	StatusCode int
	Body       []byte
}

// Retryable reports whether the controller may attempt the URL again.
func (o FetchOutcome) Retryable() bool {
	return o.Kind == OutcomeSoftBlock || o.Kind == OutcomeHardFailure || o.Kind == OutcomeTimeout
}

// GiveUpError is returned once a logical fetch request exhausts its retry
// budget. It carries the final classified outcome for caller bookkeeping.
type GiveUpError struct {
	URL      string
	Attempts int
	Last     FetchOutcome
}

func (e *GiveUpError) Error() string {
	return fmt.Sprintf("gave up on %s after %d attempts: %s (%s)", e.URL, e.Attempts, e.Last.Kind, e.Last.Reason)
}

// NotFoundError marks a permanently missing resource (profile or page).
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.URL)
}
