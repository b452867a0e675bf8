package hooks

import (
	"context"

	"github.com/parchment-es/eventstore/es"
	"github.com/parchment-es/eventstore/es/persistence"
)

// decorated wraps a persistence.Persistence so that every commit a read
// path yields has first passed through the chain's Select hooks, exactly
// as commits a write path produces pass through PostCommit. This is how
// a hook with a local cache (the optimistic concurrency hook, chiefly)
// observes the same commits whether they arrive via a write it performed
// or a read from another process's write.
//
// Write paths are untouched: the facade runs PreCommit/PostCommit itself
// and calls the wrapped Persistence directly for Commit.
type decorated struct {
	persistence.Persistence
	chain *Chain
}

// Decorate wraps p so that GetFrom and GetFromCheckpoint run each
// returned commit through chain's Select hooks, and Purge/DeleteStream
// fan out to the chain's Purger/StreamDeleter hooks.
func Decorate(p persistence.Persistence, chain *Chain) persistence.Persistence {
	return &decorated{Persistence: p, chain: chain}
}

// GetFrom implements persistence.Persistence.
func (d *decorated) GetFrom(ctx context.Context, bucketID, streamID string, minRevision, maxRevision int64) ([]es.Commit, error) {
	commits, err := d.Persistence.GetFrom(ctx, bucketID, streamID, minRevision, maxRevision)
	if err != nil {
		return nil, err
	}
	return d.selectAll(ctx, commits), nil
}

// GetFromCheckpoint implements persistence.Persistence.
func (d *decorated) GetFromCheckpoint(ctx context.Context, bucketID string, checkpoint int64) ([]es.Commit, error) {
	commits, err := d.Persistence.GetFromCheckpoint(ctx, bucketID, checkpoint)
	if err != nil {
		return nil, err
	}
	return d.selectAll(ctx, commits), nil
}

func (d *decorated) selectAll(ctx context.Context, commits []es.Commit) []es.Commit {
	out := make([]es.Commit, 0, len(commits))
	for _, c := range commits {
		if selected, ok := d.chain.RunSelect(ctx, c); ok {
			out = append(out, selected)
		}
	}
	return out
}

// Purge implements persistence.Persistence, fanning out to OnPurge hooks
// after the underlying purge succeeds.
func (d *decorated) Purge(ctx context.Context, bucketID string) error {
	if err := d.Persistence.Purge(ctx, bucketID); err != nil {
		return err
	}
	d.chain.RunOnPurge(ctx, bucketID)
	return nil
}

// DeleteStream implements persistence.Persistence, fanning out to
// OnDeleteStream hooks after the underlying delete succeeds.
func (d *decorated) DeleteStream(ctx context.Context, bucketID, streamID string) error {
	if err := d.Persistence.DeleteStream(ctx, bucketID, streamID); err != nil {
		return err
	}
	d.chain.RunOnDeleteStream(ctx, bucketID, streamID)
	return nil
}
