package es

import (
	"errors"
	"fmt"
)

// ConcurrencyConflictError indicates another writer already committed to
// the same stream at an overlapping commit sequence or revision. The
// stream refreshes its committed history; the caller decides whether to
// retry with a new decision.
type ConcurrencyConflictError struct {
	BucketID string
	StreamID string
	Reason   string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %s/%s: %s", e.BucketID, e.StreamID, e.Reason)
}

// DuplicateCommitError indicates a commit with the same (BucketID,
// StreamID, CommitID) is already durable. Streams treat this as an
// idempotent success, not a failure.
type DuplicateCommitError struct {
	BucketID string
	StreamID string
	CommitID string
}

func (e *DuplicateCommitError) Error() string {
	return fmt.Sprintf("commit %s already durable on stream %s/%s", e.CommitID, e.BucketID, e.StreamID)
}

// StorageUnavailableError wraps a transient backend fault. Callers may
// retry; the attempt was not durably rejected.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// InvalidAttemptError indicates a CommitAttempt violates a structural
// invariant and was rejected before reaching persistence.
type InvalidAttemptError struct {
	Reason string
}

func (e *InvalidAttemptError) Error() string {
	return fmt.Sprintf("invalid commit attempt: %s", e.Reason)
}

// AsConcurrencyConflict reports whether err is (or wraps) a
// ConcurrencyConflictError.
func AsConcurrencyConflict(err error) (*ConcurrencyConflictError, bool) {
	var cc *ConcurrencyConflictError
	if errors.As(err, &cc) {
		return cc, true
	}
	return nil, false
}

// AsDuplicateCommit reports whether err is (or wraps) a
// DuplicateCommitError.
func AsDuplicateCommit(err error) (*DuplicateCommitError, bool) {
	var dc *DuplicateCommitError
	if errors.As(err, &dc) {
		return dc, true
	}
	return nil, false
}
