package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/parchment-es/eventstore/es"
)

func mkAttempt(bucket, stream string, sequence, revision int64, n int) es.CommitAttempt {
	events := make([]es.EventMessage, n)
	for i := range events {
		events[i] = es.EventMessage{Body: []byte("e")}
	}
	return es.CommitAttempt{
		BucketID: bucket, StreamID: stream, Events: events,
		StreamRevision: revision, CommitSequence: sequence,
		CommitID: uuid.New(), CommitStamp: time.Now().UTC(),
	}
}

func TestStore_CommitAssignsIncreasingCheckpoints(t *testing.T) {
	store := New()
	ctx := context.Background()

	c1, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 1, 1, 1))
	if err != nil {
		t.Fatalf("commit 1 failed: %v", err)
	}
	c2, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s2", 1, 1, 1))
	if err != nil {
		t.Fatalf("commit 2 failed: %v", err)
	}
	if c2.CheckpointToken <= c1.CheckpointToken {
		t.Error("expected checkpoint tokens to strictly increase across streams")
	}
}

func TestStore_Commit_RejectsWrongCommitSequence(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 1, 1, 1)); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	_, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 3, 3, 1))
	if err == nil {
		t.Fatal("expected conflict for a commit sequence that skips ahead")
	}
	if _, ok := es.AsConcurrencyConflict(err); !ok {
		t.Errorf("expected ConcurrencyConflictError, got %T", err)
	}
}

func TestStore_Commit_DuplicateCommitIDIsIdempotentAtStorage(t *testing.T) {
	store := New()
	ctx := context.Background()

	attempt := mkAttempt(es.DefaultBucket, "s1", 1, 1, 1)
	if _, err := store.Commit(ctx, attempt); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	retry := attempt
	retry.CommitSequence = 2
	retry.StreamRevision = 2
	_, err := store.Commit(ctx, retry)
	if err == nil {
		t.Fatal("expected duplicate commit error")
	}
	if _, ok := es.AsDuplicateCommit(err); !ok {
		t.Errorf("expected DuplicateCommitError, got %T", err)
	}
}

func TestStore_GetFrom_FiltersByRevisionIntersection(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 1, 3, 3)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 2, 6, 3)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	commits, err := store.GetFrom(ctx, es.DefaultBucket, "s1", 4, 5)
	if err != nil {
		t.Fatalf("GetFrom failed: %v", err)
	}
	if len(commits) != 1 || commits[0].CommitSequence != 2 {
		t.Fatalf("expected only the second commit to intersect [4,5], got %+v", commits)
	}
}

func TestStore_SnapshotHighestAtOrBelowBound(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 1, 10, 10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	for _, rev := range []int64{3, 6, 9} {
		if _, err := store.AddSnapshot(ctx, es.Snapshot{BucketID: es.DefaultBucket, StreamID: "s1", StreamRevision: rev, Payload: []byte("x")}); err != nil {
			t.Fatalf("AddSnapshot failed: %v", err)
		}
	}

	snap, ok, err := store.GetSnapshot(ctx, es.DefaultBucket, "s1", 7)
	if err != nil || !ok {
		t.Fatalf("GetSnapshot failed: ok=%v err=%v", ok, err)
	}
	if snap.StreamRevision != 6 {
		t.Errorf("expected highest snapshot <= 7 to be revision 6, got %d", snap.StreamRevision)
	}
}

func TestStore_AddSnapshot_RejectsUnknownStream(t *testing.T) {
	store := New()
	ok, err := store.AddSnapshot(context.Background(), es.Snapshot{BucketID: es.DefaultBucket, StreamID: "ghost", StreamRevision: 1, Payload: []byte("x")})
	if err != nil {
		t.Fatalf("AddSnapshot failed: %v", err)
	}
	if ok {
		t.Error("expected AddSnapshot to reject a stream with no commits")
	}
}

func TestStore_GetStreamsToSnapshot_RespectsThreshold(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 1, 10, 10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s2", 1, 2, 2)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	heads, err := store.GetStreamsToSnapshot(ctx, es.DefaultBucket, 5)
	if err != nil {
		t.Fatalf("GetStreamsToSnapshot failed: %v", err)
	}
	if len(heads) != 1 || heads[0].StreamID != "s1" {
		t.Fatalf("expected only s1 past threshold, got %+v", heads)
	}
}

func TestStore_DeleteStream_RemovesCommitsAndSnapshots(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, "s1", 1, 1, 1)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.AddSnapshot(ctx, es.Snapshot{BucketID: es.DefaultBucket, StreamID: "s1", StreamRevision: 1, Payload: []byte("x")}); err != nil {
		t.Fatalf("AddSnapshot failed: %v", err)
	}

	if err := store.DeleteStream(ctx, es.DefaultBucket, "s1"); err != nil {
		t.Fatalf("DeleteStream failed: %v", err)
	}

	commits, err := store.GetFrom(ctx, es.DefaultBucket, "s1", 0, 0)
	if err != nil || len(commits) != 0 {
		t.Fatalf("expected no commits after delete, got %d err=%v", len(commits), err)
	}
	_, found, err := store.GetSnapshot(ctx, es.DefaultBucket, "s1", 0)
	if err != nil || found {
		t.Fatalf("expected no snapshot after delete, found=%v err=%v", found, err)
	}
}

func TestStore_Purge_ScopedToBucket(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Commit(ctx, mkAttempt("a", "s1", 1, 1, 1)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := store.Commit(ctx, mkAttempt("b", "s1", 1, 1, 1)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if err := store.Purge(ctx, "a"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	aCommits, err := store.GetFrom(ctx, "a", "s1", 0, 0)
	if err != nil || len(aCommits) != 0 {
		t.Fatalf("expected bucket a purged, got %d commits err=%v", len(aCommits), err)
	}
	bCommits, err := store.GetFrom(ctx, "b", "s1", 0, 0)
	if err != nil || len(bCommits) != 1 {
		t.Fatalf("expected bucket b untouched, got %d commits err=%v", len(bCommits), err)
	}
}

func TestStore_GetFromCheckpoint_OrdersAcrossStreams(t *testing.T) {
	store := New()
	ctx := context.Background()

	type streamState struct{ sequence, revision int64 }
	state := map[string]*streamState{"s1": {}, "s2": {}}

	for _, stream := range []string{"s1", "s2", "s1"} {
		st := state[stream]
		st.sequence++
		st.revision++
		if _, err := store.Commit(ctx, mkAttempt(es.DefaultBucket, stream, st.sequence, st.revision, 1)); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
	}

	commits, err := store.GetFromCheckpoint(ctx, es.DefaultBucket, 0)
	if err != nil {
		t.Fatalf("GetFromCheckpoint failed: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(commits))
	}
	for i := 1; i < len(commits); i++ {
		if commits[i].CheckpointToken <= commits[i-1].CheckpointToken {
			t.Error("expected strictly increasing checkpoint order")
		}
	}
}
