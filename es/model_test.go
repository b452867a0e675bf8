package es

import (
	"testing"

	"github.com/google/uuid"
)

func TestCommitAttempt_Validate(t *testing.T) {
	valid := CommitAttempt{
		BucketID:       DefaultBucket,
		StreamID:       "s1",
		Events:         []EventMessage{{Body: []byte("a")}},
		StreamRevision: 1,
		CommitSequence: 1,
		CommitID:       uuid.New(),
	}

	tests := []struct {
		name    string
		mutate  func(a CommitAttempt) CommitAttempt
		wantErr bool
	}{
		{"valid", func(a CommitAttempt) CommitAttempt { return a }, false},
		{"no events", func(a CommitAttempt) CommitAttempt { a.Events = nil; return a }, true},
		{"zero commit sequence", func(a CommitAttempt) CommitAttempt { a.CommitSequence = 0; return a }, true},
		{"revision below event count", func(a CommitAttempt) CommitAttempt { a.StreamRevision = 0; return a }, true},
		{"missing bucket", func(a CommitAttempt) CommitAttempt { a.BucketID = ""; return a }, true},
		{"missing stream", func(a CommitAttempt) CommitAttempt { a.StreamID = ""; return a }, true},
		{"nil commit id", func(a CommitAttempt) CommitAttempt { a.CommitID = uuid.Nil; return a }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(valid).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCommitAttempt_PreviousStreamRevision(t *testing.T) {
	a := CommitAttempt{StreamRevision: 5, Events: []EventMessage{{}, {}}}
	if got := a.PreviousStreamRevision(); got != 3 {
		t.Errorf("PreviousStreamRevision() = %d, want 3", got)
	}
}

func TestCommit_EventRevision(t *testing.T) {
	c := Commit{StreamRevision: 6, Events: []EventMessage{{}, {}, {}}}
	want := []int64{4, 5, 6}
	for i, w := range want {
		if got := c.EventRevision(i); got != w {
			t.Errorf("EventRevision(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestStreamHead_Lag(t *testing.T) {
	h := StreamHead{HeadRevision: 10, SnapshotRevision: 4}
	if got := h.Lag(); got != 6 {
		t.Errorf("Lag() = %d, want 6", got)
	}
}
