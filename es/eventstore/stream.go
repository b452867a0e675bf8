package eventstore

import (
	"context"
	"maps"

	"github.com/google/uuid"

	"github.com/parchment-es/eventstore/es"
)

// Stream is the central client-side object of the package. It
// accumulates uncommitted events, tracks the revision the client last
// observed, and assembles CommitAttempts. A Stream is owned by exactly
// one writer at a time and is not safe for concurrent use.
type Stream struct {
	store *Store

	bucketID string
	streamID string

	streamRevision int64
	commitSequence int64

	committedHeaders map[string]any
	committedEvents  []es.EventMessage

	uncommittedHeaders map[string]any
	uncommittedEvents  []es.EventMessage

	identifiers map[string]struct{}
}

func newStream(store *Store, bucketID, streamID string) *Stream {
	return &Stream{
		store:              store,
		bucketID:           bucketID,
		streamID:           streamID,
		committedHeaders:   make(map[string]any),
		uncommittedHeaders: make(map[string]any),
		identifiers:        make(map[string]struct{}),
	}
}

// BucketID is the stream's bucket.
func (s *Stream) BucketID() string { return s.bucketID }

// StreamID is the stream's identity within its bucket.
func (s *Stream) StreamID() string { return s.streamID }

// StreamRevision is the revision of the last durable commit merged into
// this stream.
func (s *Stream) StreamRevision() int64 { return s.streamRevision }

// CommitSequence is the sequence of the last durable commit merged into
// this stream.
func (s *Stream) CommitSequence() int64 { return s.commitSequence }

// CommittedEvents returns the replayed history, trimmed to whatever
// revision range the stream was opened with.
func (s *Stream) CommittedEvents() []es.EventMessage {
	return append([]es.EventMessage(nil), s.committedEvents...)
}

// CommittedHeaders returns the merged headers of all loaded commits.
func (s *Stream) CommittedHeaders() map[string]any {
	return maps.Clone(s.committedHeaders)
}

// UncommittedEvents returns events staged since the last commit.
func (s *Stream) UncommittedEvents() []es.EventMessage {
	return append([]es.EventMessage(nil), s.uncommittedEvents...)
}

// UncommittedHeaders returns headers staged since the last commit.
func (s *Stream) UncommittedHeaders() map[string]any {
	return maps.Clone(s.uncommittedHeaders)
}

// Add appends event to the uncommitted buffer. Events with a nil Body
// are rejected.
func (s *Stream) Add(event es.EventMessage) error {
	if event.Body == nil {
		return &es.InvalidAttemptError{Reason: "event body must not be nil"}
	}
	s.uncommittedEvents = append(s.uncommittedEvents, event)
	return nil
}

// SetHeader stages a header to be merged into the next commit.
func (s *Stream) SetHeader(key string, value any) {
	s.uncommittedHeaders[key] = value
}

// ClearChanges drops all uncommitted state without committing it.
func (s *Stream) ClearChanges() {
	s.uncommittedEvents = nil
	s.uncommittedHeaders = make(map[string]any)
}

// CommitChanges builds a CommitAttempt from the uncommitted buffer and
// commits it through the owning Store, following this state machine:
//
//   - commitID already incorporated: idempotent retry, buffers cleared,
//     no error, no new commit.
//   - no uncommitted events: no-op, no facade call.
//   - ConcurrencyConflict: the stream refreshes its committed history from
//     persistence and rethrows the conflict; the uncommitted buffer is
//     preserved so the caller can re-decide whether to retry.
//   - DuplicateCommit: the id is recorded, buffers cleared, the failure is
//     swallowed (idempotent success).
//   - any other failure: propagated, buffer preserved.
func (s *Stream) CommitChanges(ctx context.Context, commitID uuid.UUID) (es.Commit, error) {
	if _, already := s.identifiers[commitID.String()]; already {
		s.ClearChanges()
		return es.Commit{}, nil
	}
	if len(s.uncommittedEvents) == 0 {
		return es.Commit{}, nil
	}

	attempt := es.CommitAttempt{
		BucketID:       s.bucketID,
		StreamID:       s.streamID,
		StreamRevision: s.streamRevision + int64(len(s.uncommittedEvents)),
		CommitSequence: s.commitSequence + 1,
		CommitID:       commitID,
		CommitStamp:    s.store.clock.Now(),
		Headers:        maps.Clone(s.uncommittedHeaders),
		Events:         append([]es.EventMessage(nil), s.uncommittedEvents...),
	}

	commit, ok, err := s.store.Commit(ctx, attempt)
	if err != nil {
		if dup, isDup := es.AsDuplicateCommit(err); isDup {
			s.identifiers[dup.CommitID] = struct{}{}
			s.ClearChanges()
			return es.Commit{}, nil
		}
		if _, isConflict := es.AsConcurrencyConflict(err); isConflict {
			if refreshErr := s.refresh(ctx); refreshErr != nil {
				return es.Commit{}, refreshErr
			}
			return es.Commit{}, err
		}
		return es.Commit{}, err
	}
	if !ok {
		// Hook veto: not a failure, but nothing was persisted either.
		return es.Commit{}, nil
	}

	s.mergeCommit(commit, 1, 0)
	s.ClearChanges()
	return commit, nil
}

// refresh reloads commits the stream hasn't seen yet after a conflict,
// preserving the caller's uncommitted buffer.
func (s *Stream) refresh(ctx context.Context) error {
	commits, err := s.store.reads.GetFrom(ctx, s.bucketID, s.streamID, s.streamRevision+1, 0)
	if err != nil {
		return err
	}
	for _, c := range commits {
		s.mergeCommit(c, 1, 0)
	}
	return nil
}

// mergeCommit folds a durable commit into committed state: events whose
// effective revision falls within
// [minRevision, maxRevision] are appended to committedEvents; headers
// merge last-writer-wins in commit order; streamRevision/commitSequence
// advance monotonically; the commit id is recorded.
func (s *Stream) mergeCommit(commit es.Commit, minRevision, maxRevision int64) {
	for i, event := range commit.Events {
		rev := commit.EventRevision(i)
		if rev < minRevision {
			continue
		}
		if maxRevision > 0 && rev > maxRevision {
			continue
		}
		s.committedEvents = append(s.committedEvents, event)
	}
	for k, v := range commit.Headers {
		s.committedHeaders[k] = v
	}
	if commit.StreamRevision > s.streamRevision {
		s.streamRevision = commit.StreamRevision
	}
	if commit.CommitSequence > s.commitSequence {
		s.commitSequence = commit.CommitSequence
	}
	s.identifiers[commit.CommitID.String()] = struct{}{}
}
