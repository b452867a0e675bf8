package es

import (
	"time"

	"github.com/google/uuid"
)

// DefaultBucket is the bucket identifier used when a caller does not
// need namespace isolation between groups of streams.
const DefaultBucket = "default"

// EventMessage is a single opaque domain event. The core never inspects
// Body; callers choose their own encoding via the codec package.
type EventMessage struct {
	// Headers carries caller-defined metadata for this event alone.
	Headers map[string]any

	// Body is the opaque, already-encoded event payload.
	Body []byte
}

// CommitAttempt is a client-built, not-yet-durable batch of events for a
// single stream. Constructing one directly is unusual; Stream.CommitChanges
// builds attempts internally. Exported so persistence adapters can accept
// and validate them without importing the eventstore package.
type CommitAttempt struct {
	// CommitStamp is the UTC instant the attempt was built.
	CommitStamp time.Time

	// Headers are the commit-level headers merged into the stream on success.
	Headers map[string]any

	// BucketID namespaces StreamID.
	BucketID string

	// StreamID identifies the stream within BucketID.
	StreamID string

	// Events is the ordered, non-empty batch of events in this attempt.
	Events []EventMessage

	// StreamRevision is the stream revision after this attempt is applied:
	// the revision the stream had before the attempt, plus len(Events).
	StreamRevision int64

	// CommitSequence is the 1-based ordinal of this commit within the stream.
	CommitSequence int64

	// CommitID uniquely identifies this attempt within (BucketID, StreamID).
	// A retry presenting a CommitID already durable on the stream is a
	// duplicate, not a new commit.
	CommitID uuid.UUID
}

// Validate checks the structural invariants an attempt must satisfy
// before it is handed to persistence.
func (a CommitAttempt) Validate() error {
	if len(a.Events) == 0 {
		return &InvalidAttemptError{Reason: "attempt has no events"}
	}
	if a.CommitSequence < 1 {
		return &InvalidAttemptError{Reason: "commit sequence must be >= 1"}
	}
	if a.StreamRevision < int64(len(a.Events)) {
		return &InvalidAttemptError{Reason: "stream revision must be >= len(events)"}
	}
	if a.BucketID == "" {
		return &InvalidAttemptError{Reason: "bucket id is required"}
	}
	if a.StreamID == "" {
		return &InvalidAttemptError{Reason: "stream id is required"}
	}
	if a.CommitID == uuid.Nil {
		return &InvalidAttemptError{Reason: "commit id is required"}
	}
	return nil
}

// PreviousStreamRevision is the stream revision this attempt was built
// against: StreamRevision minus the number of events in the attempt.
func (a CommitAttempt) PreviousStreamRevision() int64 {
	return a.StreamRevision - int64(len(a.Events))
}

// Commit is the durable record of a successfully persisted CommitAttempt.
// CheckpointToken is assigned by the backend and strictly increases across
// every durable commit in the store, linearizing commits across streams.
type Commit struct {
	CommitStamp     time.Time
	Headers         map[string]any
	BucketID        string
	StreamID        string
	Events          []EventMessage
	StreamRevision  int64
	CommitSequence  int64
	CheckpointToken int64
	CommitID        uuid.UUID
}

// PreviousStreamRevision mirrors CommitAttempt.PreviousStreamRevision.
func (c Commit) PreviousStreamRevision() int64 {
	return c.StreamRevision - int64(len(c.Events))
}

// EventRevision returns the effective stream revision of the i'th
// (0-based) event within this commit.
func (c Commit) EventRevision(i int) int64 {
	return c.StreamRevision - int64(len(c.Events)) + 1 + int64(i)
}

// Snapshot is a cached fold of a stream's events up to StreamRevision.
// Multiple snapshots may coexist for a stream; persistence returns the
// highest revision at or below a caller-supplied bound.
type Snapshot struct {
	BucketID       string
	StreamID       string
	Payload        []byte
	StreamRevision int64
}

// StreamHead identifies a stream and how far its most recent snapshot
// lags its current revision, as returned by GetStreamsToSnapshot.
type StreamHead struct {
	BucketID         string
	StreamID         string
	HeadRevision     int64
	SnapshotRevision int64
}

// Lag is how many events have been committed since the stream's most
// recent snapshot.
func (h StreamHead) Lag() int64 {
	return h.HeadRevision - h.SnapshotRevision
}
