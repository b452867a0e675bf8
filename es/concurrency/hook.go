// Package concurrency provides an in-process optimistic-concurrency
// guard: a fast-path conflict detector that tracks, per stream, the head
// (streamRevision, commitSequence) it has observed and a bounded set of
// recently-seen commit ids.
//
// The cache tolerates eviction: an evicted entry simply defers to
// persistence's own uniqueness constraints, never producing a false
// commit.
package concurrency

import (
	"container/list"
	"context"
	"sync"

	"github.com/parchment-es/eventstore/es"
)

// DefaultRecentCommitIDs bounds how many recent commit ids are retained
// per stream.
const DefaultRecentCommitIDs = 100

type streamKey struct {
	bucketID string
	streamID string
}

type head struct {
	streamRevision int64
	commitSequence int64
	recentIDs      map[string]*list.Element
	recentOrder    *list.List
}

// Hook is a hooks.PreCommitter, hooks.PostCommitter, hooks.Selecter,
// hooks.Purger, and hooks.StreamDeleter. Register it first in a chain so
// it can reject obviously-conflicting attempts before they reach
// persistence.
type Hook struct {
	mu          sync.Mutex
	heads       map[streamKey]*head
	maxCapacity int
}

// New returns a Hook with the default recent-commit-id capacity.
func New() *Hook {
	return NewWithCapacity(DefaultRecentCommitIDs)
}

// NewWithCapacity returns a Hook whose per-stream recent-commit-id set
// holds at most capacity entries, evicting the oldest first.
func NewWithCapacity(capacity int) *Hook {
	return &Hook{heads: make(map[streamKey]*head), maxCapacity: capacity}
}

// PreCommit implements hooks.PreCommitter.
func (h *Hook) PreCommit(_ context.Context, attempt es.CommitAttempt) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := streamKey{attempt.BucketID, attempt.StreamID}
	hd, ok := h.heads[key]
	if !ok {
		return true, nil
	}

	if _, seen := hd.recentIDs[attempt.CommitID.String()]; seen {
		return false, &es.DuplicateCommitError{
			BucketID: attempt.BucketID,
			StreamID: attempt.StreamID,
			CommitID: attempt.CommitID.String(),
		}
	}
	if attempt.CommitSequence <= hd.commitSequence {
		return false, &es.ConcurrencyConflictError{
			BucketID: attempt.BucketID,
			StreamID: attempt.StreamID,
			Reason:   "commit sequence already observed",
		}
	}
	if attempt.StreamRevision <= hd.streamRevision {
		return false, &es.ConcurrencyConflictError{
			BucketID: attempt.BucketID,
			StreamID: attempt.StreamID,
			Reason:   "stream revision already observed",
		}
	}
	return true, nil
}

// PostCommit implements hooks.PostCommitter.
func (h *Hook) PostCommit(_ context.Context, commit es.Commit) {
	h.observe(commit)
}

// Select implements hooks.Selecter. Observing commits on the read path
// too is what lets this cache see the same commits a concurrent writer
// already produced.
func (h *Hook) Select(_ context.Context, commit es.Commit) (es.Commit, bool) {
	h.observe(commit)
	return commit, true
}

func (h *Hook) observe(commit es.Commit) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := streamKey{commit.BucketID, commit.StreamID}
	hd, ok := h.heads[key]
	if !ok {
		hd = &head{recentIDs: make(map[string]*list.Element), recentOrder: list.New()}
		h.heads[key] = hd
	}
	if commit.StreamRevision > hd.streamRevision {
		hd.streamRevision = commit.StreamRevision
	}
	if commit.CommitSequence > hd.commitSequence {
		hd.commitSequence = commit.CommitSequence
	}
	h.remember(hd, commit.CommitID.String())
}

func (h *Hook) remember(hd *head, id string) {
	if _, ok := hd.recentIDs[id]; ok {
		return
	}
	elem := hd.recentOrder.PushBack(id)
	hd.recentIDs[id] = elem
	for hd.recentOrder.Len() > h.maxCapacity {
		oldest := hd.recentOrder.Front()
		if oldest == nil {
			break
		}
		hd.recentOrder.Remove(oldest)
		delete(hd.recentIDs, oldest.Value.(string))
	}
}

// OnPurge implements hooks.Purger: all cached heads are evicted, per
// bucket, or entirely when bucketID is empty.
func (h *Hook) OnPurge(_ context.Context, bucketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if bucketID == "" {
		h.heads = make(map[streamKey]*head)
		return
	}
	for key := range h.heads {
		if key.bucketID == bucketID {
			delete(h.heads, key)
		}
	}
}

// OnDeleteStream implements hooks.StreamDeleter.
func (h *Hook) OnDeleteStream(_ context.Context, bucketID, streamID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.heads, streamKey{bucketID, streamID})
}
