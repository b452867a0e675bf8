// Package eventstore provides the Store facade and the client-side
// Stream: the two types application code actually talks to.
package eventstore

import (
	"context"

	"github.com/parchment-es/eventstore/es"
	"github.com/parchment-es/eventstore/es/clock"
	"github.com/parchment-es/eventstore/es/hooks"
	"github.com/parchment-es/eventstore/es/logging"
	"github.com/parchment-es/eventstore/es/persistence"
)

// Store opens/creates streams and routes commits through the hook
// pipeline. Safe for concurrent use; the streams it produces are not.
type Store struct {
	raw    persistence.Persistence // undecorated, for Commit and Close
	reads  persistence.Persistence // hook-aware decorator, for reads and Advanced()
	chain  *hooks.Chain
	clock  clock.Clock
	logger logging.Logger
}

// Option configures a Store at construction time, following the
// teacher's own functional-option convention (sqlite.WithLogger,
// WithEventsTable, ...).
type Option func(*Store)

// WithLogger sets the logger used for the persistence and hook disposal
// failures that Close suppresses. Defaults to logging.NoOp{}.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the source of CommitStamp values. Defaults to
// clock.System{}.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New builds a Store over backend, running commits through hooks in
// registration order. Read paths are also routed through a hook-aware
// decorator so every hook sees the same commits on reads and writes.
func New(backend persistence.Persistence, hookList []any, opts ...Option) *Store {
	chain := hooks.NewChain(hookList...)
	s := &Store{
		raw:    backend,
		reads:  hooks.Decorate(backend, chain),
		chain:  chain,
		clock:  clock.System{},
		logger: logging.NoOp{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advanced exposes the full persistence contract for callers that need
// operations the facade doesn't wrap (Initialize, Purge, Drop, snapshot
// management).
func (s *Store) Advanced() persistence.Persistence {
	return s.reads
}

// CreateStream returns a fresh, transient stream at revision 0.
func (s *Store) CreateStream(bucketID, streamID string) *Stream {
	return newStream(s, bucketID, streamID)
}

// OpenStream materializes committed history for (bucketID, streamID) by
// reading commits in [minRevision, maxRevision] and replaying them into a
// Stream. maxRevision <= 0 means unbounded. A stream with no commits in
// range is returned as an empty, Fresh-like stream, not an error.
func (s *Store) OpenStream(ctx context.Context, bucketID, streamID string, minRevision, maxRevision int64) (*Stream, error) {
	if maxRevision < 0 {
		maxRevision = 0
	}
	commits, err := s.reads.GetFrom(ctx, bucketID, streamID, minRevision, maxRevision)
	if err != nil {
		return nil, err
	}
	stream := newStream(s, bucketID, streamID)
	for _, c := range commits {
		stream.mergeCommit(c, minRevision, maxRevision)
	}
	return stream, nil
}

// OpenStreamFromSnapshot materializes a stream starting from snap,
// loading only commits with revision greater than snap.StreamRevision,
// up to maxRevision (<= 0 meaning unbounded).
func (s *Store) OpenStreamFromSnapshot(ctx context.Context, snap es.Snapshot, maxRevision int64) (*Stream, error) {
	if maxRevision < 0 {
		maxRevision = 0
	}
	commits, err := s.reads.GetFrom(ctx, snap.BucketID, snap.StreamID, snap.StreamRevision+1, maxRevision)
	if err != nil {
		return nil, err
	}
	stream := newStream(s, snap.BucketID, snap.StreamID)
	stream.streamRevision = snap.StreamRevision
	for _, c := range commits {
		stream.mergeCommit(c, snap.StreamRevision+1, maxRevision)
	}
	return stream, nil
}

// Commit runs attempt through the pre-commit chain; if no hook vetoes it,
// persists it and runs the post-commit chain. Returns ok=false, with no
// error, when a hook vetoed the commit.
func (s *Store) Commit(ctx context.Context, attempt es.CommitAttempt) (commit es.Commit, ok bool, err error) {
	if err := attempt.Validate(); err != nil {
		return es.Commit{}, false, err
	}

	veto, err := s.chain.RunPreCommit(ctx, attempt)
	if err != nil {
		return es.Commit{}, false, err
	}
	if veto {
		return es.Commit{}, false, nil
	}

	commit, err = s.raw.Commit(ctx, attempt)
	if err != nil {
		return es.Commit{}, false, err
	}

	s.chain.RunPostCommit(ctx, commit)
	return commit, true, nil
}

// Close disposes the persistence backend and then every hook once, in
// registration order. Disposal failures are logged and suppressed.
func (s *Store) Close(ctx context.Context) error {
	if disposer, ok := s.raw.(interface{ Close() error }); ok {
		if err := disposer.Close(); err != nil {
			s.logger.Error(ctx, "persistence disposal failed", "error", err)
		}
	}
	errs := s.chain.Dispose()
	for _, err := range errs {
		s.logger.Error(ctx, "hook disposal failed", "error", err)
	}
	return nil
}
