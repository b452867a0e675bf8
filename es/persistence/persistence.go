// Package persistence defines the abstract append-only log the core
// depends on. Concrete backends live in subpackages: persistence/memory,
// persistence/postgres, persistence/mysql, persistence/sqlite.
package persistence

import (
	"context"

	"github.com/parchment-es/eventstore/es"
)

// Persistence is the storage contract every backend must satisfy.
// Implementations must:
//   - provide ACID guarantees at the granularity of a single Commit call
//   - enforce uniqueness of (bucketId, streamId, commitSequence) and
//     (bucketId, streamId, commitId), translating violations into
//     *es.ConcurrencyConflictError and *es.DuplicateCommitError respectively
//   - assign strictly increasing checkpoint tokens across the whole store
type Persistence interface {
	// GetFrom returns durable commits for (bucketID, streamID) whose
	// revision range intersects [minRevision, maxRevision], ordered by
	// commit sequence ascending. maxRevision <= 0 means unbounded.
	GetFrom(ctx context.Context, bucketID, streamID string, minRevision, maxRevision int64) ([]es.Commit, error)

	// GetFromCheckpoint returns every durable commit in bucketID with a
	// checkpoint token strictly greater than checkpoint, in checkpoint
	// order, regardless of stream.
	GetFromCheckpoint(ctx context.Context, bucketID string, checkpoint int64) ([]es.Commit, error)

	// Commit durably appends attempt, assigning it a checkpoint token.
	// Returns *es.ConcurrencyConflictError, *es.DuplicateCommitError, or
	// *es.StorageUnavailableError on failure.
	Commit(ctx context.Context, attempt es.CommitAttempt) (es.Commit, error)

	// GetSnapshot returns the highest-revision snapshot for (bucketID,
	// streamID) at or below maxRevision, or ok=false if none exists.
	GetSnapshot(ctx context.Context, bucketID, streamID string, maxRevision int64) (snap es.Snapshot, ok bool, err error)

	// AddSnapshot durably stores snap. Idempotent. Returns false if the
	// stream no longer exists or snap is stale (a snapshot at or past its
	// revision already exists).
	AddSnapshot(ctx context.Context, snap es.Snapshot) (bool, error)

	// GetStreamsToSnapshot returns streams in bucketID whose lag
	// (headRevision - snapshotRevision) is at least minThreshold.
	GetStreamsToSnapshot(ctx context.Context, bucketID string, minThreshold int64) ([]es.StreamHead, error)

	// Initialize prepares the backend (schema, indices). Idempotent.
	Initialize(ctx context.Context) error

	// Purge deletes all commits and snapshots in bucketID, or in every
	// bucket if bucketID is empty.
	Purge(ctx context.Context, bucketID string) error

	// Drop removes all backend-managed state, including schema.
	Drop(ctx context.Context) error

	// DeleteStream deletes all commits and snapshots for one stream.
	DeleteStream(ctx context.Context, bucketID, streamID string) error
}
