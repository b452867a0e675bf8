package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/parchment-es/eventstore/es"
)

type stubHook struct {
	name        string
	preCommit   func(ctx context.Context, attempt es.CommitAttempt) (bool, error)
	postCommits []es.Commit
	selects     []es.Commit
	purged      []string
	deleted     []string
	disposeErr  error
	disposed    bool
}

func (h *stubHook) PreCommit(ctx context.Context, attempt es.CommitAttempt) (bool, error) {
	if h.preCommit == nil {
		return true, nil
	}
	return h.preCommit(ctx, attempt)
}

func (h *stubHook) PostCommit(_ context.Context, commit es.Commit) {
	h.postCommits = append(h.postCommits, commit)
}

func (h *stubHook) Select(_ context.Context, commit es.Commit) (es.Commit, bool) {
	h.selects = append(h.selects, commit)
	return commit, true
}

func (h *stubHook) OnPurge(_ context.Context, bucketID string) {
	h.purged = append(h.purged, bucketID)
}

func (h *stubHook) OnDeleteStream(_ context.Context, bucketID, streamID string) {
	h.deleted = append(h.deleted, bucketID+"/"+streamID)
}

func (h *stubHook) Dispose() error {
	h.disposed = true
	return h.disposeErr
}

func TestChain_RunPreCommit_VetoStopsChain(t *testing.T) {
	first := &stubHook{preCommit: func(context.Context, es.CommitAttempt) (bool, error) { return false, nil }}
	secondRan := false
	second := &stubHook{preCommit: func(context.Context, es.CommitAttempt) (bool, error) { secondRan = true; return true, nil }}
	chain := NewChain(first, second)

	veto, err := chain.RunPreCommit(context.Background(), es.CommitAttempt{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !veto {
		t.Fatal("expected veto")
	}
	if secondRan {
		t.Fatal("second hook should not have run after a veto")
	}
}

func TestChain_RunPreCommit_ErrorStopsChain(t *testing.T) {
	boom := errors.New("boom")
	first := &stubHook{preCommit: func(context.Context, es.CommitAttempt) (bool, error) { return false, boom }}
	secondRan := false
	second := &stubHook{preCommit: func(context.Context, es.CommitAttempt) (bool, error) { secondRan = true; return true, nil }}
	chain := NewChain(first, second)

	_, err := chain.RunPreCommit(context.Background(), es.CommitAttempt{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if secondRan {
		t.Fatal("second hook should not have run")
	}
}

func TestChain_RunPostCommit_RunsAllInOrder(t *testing.T) {
	first := &stubHook{}
	second := &stubHook{}
	chain := NewChain(first, second)

	commit := es.Commit{StreamID: "s1"}
	chain.RunPostCommit(context.Background(), commit)

	if len(first.postCommits) != 1 || len(second.postCommits) != 1 {
		t.Fatal("expected both hooks to observe the commit")
	}
}

func TestChain_RunSelect_DropStopsProcessing(t *testing.T) {
	dropper := &stubHook{}
	chain := NewChain(dropper)
	// Wrap a hook that vetoes selection.
	veto := &selectVeto{}
	chain.Add(veto)

	_, ok := chain.RunSelect(context.Background(), es.Commit{})
	if ok {
		t.Fatal("expected select to be dropped")
	}
}

type selectVeto struct{}

func (selectVeto) Select(context.Context, es.Commit) (es.Commit, bool) {
	return es.Commit{}, false
}

func TestChain_OnPurgeAndOnDeleteStream(t *testing.T) {
	hook := &stubHook{}
	chain := NewChain(hook)

	chain.RunOnPurge(context.Background(), "bucket-a")
	chain.RunOnDeleteStream(context.Background(), "bucket-a", "stream-1")

	if len(hook.purged) != 1 || hook.purged[0] != "bucket-a" {
		t.Fatalf("unexpected purge notifications: %v", hook.purged)
	}
	if len(hook.deleted) != 1 || hook.deleted[0] != "bucket-a/stream-1" {
		t.Fatalf("unexpected delete notifications: %v", hook.deleted)
	}
}

func TestChain_Dispose_CollectsErrorsWithoutStopping(t *testing.T) {
	boom := errors.New("boom")
	first := &stubHook{disposeErr: boom}
	second := &stubHook{}
	chain := NewChain(first, second)

	errs := chain.Dispose()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !second.disposed {
		t.Fatal("expected second hook to be disposed despite first's error")
	}
}

func TestChain_IgnoresHooksWithoutMatchingCapability(t *testing.T) {
	chain := NewChain(struct{}{})
	veto, err := chain.RunPreCommit(context.Background(), es.CommitAttempt{})
	if err != nil || veto {
		t.Fatalf("expected no-op for a hook implementing nothing, got veto=%v err=%v", veto, err)
	}
}
