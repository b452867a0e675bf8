// Package memory provides a dependency-free, in-process implementation of
// the persistence contract. It backs the core's own tests and is a
// reasonable starting backend for callers who don't need durability yet.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/parchment-es/eventstore/es"
	"github.com/parchment-es/eventstore/es/persistence"
)

type streamKey struct {
	bucketID string
	streamID string
}

// Store is a mutex-guarded, slice-and-map backed Persistence implementation.
// Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	commits     map[streamKey][]es.Commit
	commitByID  map[streamKey]map[string]struct{}
	snapshots   map[streamKey][]es.Snapshot
	allCommits  []es.Commit // ordered by checkpoint, across all buckets
	nextCheckpt int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		commits:    make(map[streamKey][]es.Commit),
		commitByID: make(map[streamKey]map[string]struct{}),
		snapshots:  make(map[streamKey][]es.Snapshot),
	}
}

// Initialize implements persistence.Persistence. Memory stores need no
// preparation.
func (s *Store) Initialize(_ context.Context) error {
	return nil
}

// GetFrom implements persistence.Persistence.
func (s *Store) GetFrom(_ context.Context, bucketID, streamID string, minRevision, maxRevision int64) ([]es.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{bucketID, streamID}
	var out []es.Commit
	for _, c := range s.commits[key] {
		if commitIntersects(c, minRevision, maxRevision) {
			out = append(out, c)
		}
	}
	return out, nil
}

func commitIntersects(c es.Commit, minRevision, maxRevision int64) bool {
	lo := c.PreviousStreamRevision() + 1
	hi := c.StreamRevision
	if maxRevision <= 0 {
		return hi >= minRevision
	}
	return lo <= maxRevision && hi >= minRevision
}

// GetFromCheckpoint implements persistence.Persistence.
func (s *Store) GetFromCheckpoint(_ context.Context, bucketID string, checkpoint int64) ([]es.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []es.Commit
	for _, c := range s.allCommits {
		if c.BucketID == bucketID && c.CheckpointToken > checkpoint {
			out = append(out, c)
		}
	}
	return out, nil
}

// Commit implements persistence.Persistence.
func (s *Store) Commit(_ context.Context, attempt es.CommitAttempt) (es.Commit, error) {
	if err := attempt.Validate(); err != nil {
		return es.Commit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{attempt.BucketID, attempt.StreamID}

	if ids, ok := s.commitByID[key]; ok {
		if _, dup := ids[attempt.CommitID.String()]; dup {
			return es.Commit{}, &es.DuplicateCommitError{
				BucketID: attempt.BucketID,
				StreamID: attempt.StreamID,
				CommitID: attempt.CommitID.String(),
			}
		}
	}

	existing := s.commits[key]
	var headRevision, headSequence int64
	if n := len(existing); n > 0 {
		headRevision = existing[n-1].StreamRevision
		headSequence = existing[n-1].CommitSequence
	}
	if attempt.CommitSequence <= headSequence || attempt.PreviousStreamRevision() != headRevision {
		return es.Commit{}, &es.ConcurrencyConflictError{
			BucketID: attempt.BucketID,
			StreamID: attempt.StreamID,
			Reason:   "commit sequence or stream revision already claimed",
		}
	}

	s.nextCheckpt++
	commit := es.Commit{
		BucketID:        attempt.BucketID,
		StreamID:        attempt.StreamID,
		StreamRevision:  attempt.StreamRevision,
		CommitSequence:  attempt.CommitSequence,
		CommitID:        attempt.CommitID,
		CommitStamp:     attempt.CommitStamp,
		Headers:         attempt.Headers,
		Events:          attempt.Events,
		CheckpointToken: s.nextCheckpt,
	}

	s.commits[key] = append(existing, commit)
	s.allCommits = append(s.allCommits, commit)
	if s.commitByID[key] == nil {
		s.commitByID[key] = make(map[string]struct{})
	}
	s.commitByID[key][attempt.CommitID.String()] = struct{}{}

	return commit, nil
}

// GetSnapshot implements persistence.Persistence.
func (s *Store) GetSnapshot(_ context.Context, bucketID, streamID string, maxRevision int64) (es.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{bucketID, streamID}
	snaps := s.snapshots[key]
	best := -1
	for i, snap := range snaps {
		if maxRevision > 0 && snap.StreamRevision > maxRevision {
			continue
		}
		if best == -1 || snap.StreamRevision > snaps[best].StreamRevision {
			best = i
		}
	}
	if best == -1 {
		return es.Snapshot{}, false, nil
	}
	return snaps[best], true, nil
}

// AddSnapshot implements persistence.Persistence.
func (s *Store) AddSnapshot(_ context.Context, snap es.Snapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{snap.BucketID, snap.StreamID}
	if _, ok := s.commits[key]; !ok {
		return false, nil
	}
	for _, existing := range s.snapshots[key] {
		if existing.StreamRevision >= snap.StreamRevision {
			return false, nil
		}
	}
	s.snapshots[key] = append(s.snapshots[key], snap)
	return true, nil
}

// GetStreamsToSnapshot implements persistence.Persistence.
func (s *Store) GetStreamsToSnapshot(_ context.Context, bucketID string, minThreshold int64) ([]es.StreamHead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var heads []es.StreamHead
	for key, commits := range s.commits {
		if key.bucketID != bucketID || len(commits) == 0 {
			continue
		}
		head := commits[len(commits)-1].StreamRevision
		var snapRev int64
		for _, snap := range s.snapshots[key] {
			if snap.StreamRevision > snapRev {
				snapRev = snap.StreamRevision
			}
		}
		h := es.StreamHead{BucketID: key.bucketID, StreamID: key.streamID, HeadRevision: head, SnapshotRevision: snapRev}
		if h.Lag() >= minThreshold {
			heads = append(heads, h)
		}
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].StreamID < heads[j].StreamID })
	return heads, nil
}

// Purge implements persistence.Persistence.
func (s *Store) Purge(_ context.Context, bucketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bucketID == "" {
		s.commits = make(map[streamKey][]es.Commit)
		s.commitByID = make(map[streamKey]map[string]struct{})
		s.snapshots = make(map[streamKey][]es.Snapshot)
		s.allCommits = nil
		return nil
	}

	for key := range s.commits {
		if key.bucketID == bucketID {
			delete(s.commits, key)
			delete(s.commitByID, key)
			delete(s.snapshots, key)
		}
	}
	kept := s.allCommits[:0]
	for _, c := range s.allCommits {
		if c.BucketID != bucketID {
			kept = append(kept, c)
		}
	}
	s.allCommits = kept
	return nil
}

// Drop implements persistence.Persistence.
func (s *Store) Drop(ctx context.Context) error {
	return s.Purge(ctx, "")
}

// DeleteStream implements persistence.Persistence.
func (s *Store) DeleteStream(_ context.Context, bucketID, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{bucketID, streamID}
	delete(s.commits, key)
	delete(s.commitByID, key)
	delete(s.snapshots, key)

	kept := s.allCommits[:0]
	for _, c := range s.allCommits {
		if !(c.BucketID == bucketID && c.StreamID == streamID) {
			kept = append(kept, c)
		}
	}
	s.allCommits = kept
	return nil
}

var _ persistence.Persistence = (*Store)(nil)
