package es

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsConcurrencyConflict_MatchesWrappedError(t *testing.T) {
	cc := &ConcurrencyConflictError{BucketID: "b", StreamID: "s", Reason: "boom"}
	wrapped := fmt.Errorf("wrapping: %w", cc)

	got, ok := AsConcurrencyConflict(wrapped)
	if !ok || got != cc {
		t.Fatalf("expected to unwrap ConcurrencyConflictError, got ok=%v got=%v", ok, got)
	}
}

func TestAsConcurrencyConflict_FalseForOtherErrors(t *testing.T) {
	if _, ok := AsConcurrencyConflict(errors.New("unrelated")); ok {
		t.Fatal("expected false for unrelated error")
	}
}

func TestAsDuplicateCommit_MatchesWrappedError(t *testing.T) {
	dc := &DuplicateCommitError{BucketID: "b", StreamID: "s", CommitID: "id"}
	wrapped := fmt.Errorf("wrapping: %w", dc)

	got, ok := AsDuplicateCommit(wrapped)
	if !ok || got != dc {
		t.Fatalf("expected to unwrap DuplicateCommitError, got ok=%v got=%v", ok, got)
	}
}

func TestStorageUnavailableError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &StorageUnavailableError{Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected StorageUnavailableError to unwrap to its inner error")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&ConcurrencyConflictError{BucketID: "b", StreamID: "s", Reason: "r"}, "concurrency conflict on stream b/s: r"},
		{&DuplicateCommitError{BucketID: "b", StreamID: "s", CommitID: "id"}, "commit id already durable on stream b/s"},
		{&InvalidAttemptError{Reason: "no events"}, "invalid commit attempt: no events"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("Error() = %q, want %q", got, c.want)
		}
	}
}
