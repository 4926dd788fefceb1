package alert

import (
	"context"
	"io"
	"time"
)

// Store persists alert rules keyed by id with a secondary index by owner.
type Store interface {
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	ListRulesByOwner(ctx context.Context, owner string) ([]Rule, error)
	DeleteRule(ctx context.Context, owner, id string) error
	RecordObservation(ctx context.Context, id string, obs Observation) error
	Close() error
}

// Notifier delivers one message to one user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Fetcher performs one GET and classifies the outcome. It never returns an error;
// every failure is described by the outcome kind.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchOutcome
}

// Extractor turns the bytes of a product page into a Snapshot.
type Extractor interface {
	Shop() string
	Extract(body []byte) (Snapshot, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests for artifact naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces rule IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
