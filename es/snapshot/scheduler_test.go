package snapshot

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/parchment-es/eventstore/es"
	"github.com/parchment-es/eventstore/es/persistence/memory"
)

func sumFold(prior []byte, events []es.EventMessage) ([]byte, error) {
	var total uint64
	if len(prior) == 8 {
		total = binary.BigEndian.Uint64(prior)
	}
	total += uint64(len(events))
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, total)
	return out, nil
}

func commitN(t *testing.T, backend *memory.Store, streamID string, sequence, revision int64, n int) {
	t.Helper()
	events := make([]es.EventMessage, n)
	for i := range events {
		events[i] = es.EventMessage{Body: []byte("x")}
	}
	_, err := backend.Commit(context.Background(), es.CommitAttempt{
		BucketID:       es.DefaultBucket,
		StreamID:       streamID,
		Events:         events,
		StreamRevision: revision,
		CommitSequence: sequence,
		CommitID:       uuid.New(),
		CommitStamp:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestScheduler_TickSnapshotsStreamsPastThreshold(t *testing.T) {
	backend := memory.New()
	commitN(t, backend, "stream-a", 1, 5, 5)
	commitN(t, backend, "stream-b", 1, 2, 2)

	config := DefaultConfig(es.DefaultBucket)
	config.MinThreshold = 3
	sched := New(backend, sumFold, config)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	snap, ok, err := backend.GetSnapshot(context.Background(), es.DefaultBucket, "stream-a", 0)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if !ok {
		t.Fatal("expected stream-a to be snapshotted")
	}
	if snap.StreamRevision != 5 {
		t.Errorf("expected snapshot revision 5, got %d", snap.StreamRevision)
	}

	_, ok, err = backend.GetSnapshot(context.Background(), es.DefaultBucket, "stream-b", 0)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if ok {
		t.Fatal("expected stream-b to remain unsnapshotted, its lag is below threshold")
	}
}

func TestScheduler_SecondTickFoldsFromPriorSnapshot(t *testing.T) {
	backend := memory.New()
	commitN(t, backend, "stream-a", 1, 5, 5)

	config := DefaultConfig(es.DefaultBucket)
	config.MinThreshold = 3
	sched := New(backend, sumFold, config)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}

	commitN(t, backend, "stream-a", 2, 9, 4)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	snap, ok, err := backend.GetSnapshot(context.Background(), es.DefaultBucket, "stream-a", 0)
	if err != nil || !ok {
		t.Fatalf("GetSnapshot failed: ok=%v err=%v", ok, err)
	}
	total := binary.BigEndian.Uint64(snap.Payload)
	if total != 9 {
		t.Errorf("expected folded total 9 (5 then 4 new events), got %d", total)
	}
}

func TestScheduler_RunStopsOnContextCancel(t *testing.T) {
	backend := memory.New()
	config := DefaultConfig(es.DefaultBucket)
	config.Interval = time.Millisecond
	sched := New(backend, sumFold, config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected context error from Run")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
