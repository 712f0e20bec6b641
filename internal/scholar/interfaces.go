package scholar

import (
	"context"
	"time"
)

// Fetcher performs exactly one network fetch. Implementations must not retry
// internally; retries belong to the fetch controller.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Classifier turns a raw fetch result (or transport error) into an outcome.
// Implementations are pure functions of the response content.
type Classifier interface {
	Classify(resp FetchResponse, err error) FetchOutcome
}

// IdentityPool hands out rotating identities, one per attempt.
type IdentityPool interface {
	Next() Identity
	NextProxied() (Identity, bool)
	MarkBad(id Identity)
	HasProxy() bool
}

// Governor is the process-wide soft-block accountant shared by every
// concurrent fetch path.
type Governor interface {
	RecordSoftBlock()
	RecordSuccess()
	AwaitClearance(ctx context.Context) error
}

// Extractor converts raw page markup into structured records. Must never
// panic on malformed markup; partial data is returned best-effort.
type Extractor interface {
	ListingEntries(body []byte) ([]PublicationEntry, error)
	DetailFields(body []byte) (PublicationRecord, error)
}

// ResultSink persists one completed ProfileResult and returns the file path.
type ResultSink interface {
	Write(result ProfileResult) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
