// Package hooks provides the commit pipeline's interceptor chain and its
// read-side decorator. A hook is any value that implements one or more
// of the capability interfaces below; Chain type-asserts each
// registered hook against them rather than requiring one large
// interface, so a hook only needs to implement the behavior it cares
// about.
package hooks

import (
	"context"

	"github.com/parchment-es/eventstore/es"
)

// PreCommitter is called in registration order before persistence. A
// false return vetoes the commit: the facade returns without invoking
// persistence, and subsequent hooks are not invoked. An error aborts the
// commit with that error.
type PreCommitter interface {
	PreCommit(ctx context.Context, attempt es.CommitAttempt) (bool, error)
}

// PostCommitter is called in registration order after a successful
// persistence call. PostCommit has no error return: the chain neither
// collects nor logs hook failures, and a panic in a hook is not
// recovered.
type PostCommitter interface {
	PostCommit(ctx context.Context, commit es.Commit)
}

// Selecter is applied to each commit produced by a read. It may transform
// a commit or drop it by returning ok=false. Hooks compose left to right.
type Selecter interface {
	Select(ctx context.Context, commit es.Commit) (out es.Commit, ok bool)
}

// Purger observes bucket-wide purges, used to invalidate hook-local state.
type Purger interface {
	OnPurge(ctx context.Context, bucketID string)
}

// StreamDeleter observes single-stream deletions.
type StreamDeleter interface {
	OnDeleteStream(ctx context.Context, bucketID, streamID string)
}

// Disposer is called once, in registration order, when the owning facade
// is torn down. Disposal failures are logged and suppressed.
type Disposer interface {
	Dispose() error
}

// Chain is an ordered collection of hooks. It is data, not a base class:
// hooks are registered in the order their PreCommit/PostCommit/Select
// behavior should run.
type Chain struct {
	hooks []any
}

// NewChain builds a Chain from hooks in registration order.
func NewChain(hooks ...any) *Chain {
	return &Chain{hooks: append([]any(nil), hooks...)}
}

// Add appends a hook to the end of the chain.
func (c *Chain) Add(hook any) {
	c.hooks = append(c.hooks, hook)
}

// RunPreCommit runs every PreCommitter in registration order. It returns
// veto=true the first time a hook returns false, and stops invoking
// subsequent hooks; it returns an error immediately if a hook errors.
func (c *Chain) RunPreCommit(ctx context.Context, attempt es.CommitAttempt) (veto bool, err error) {
	for _, h := range c.hooks {
		pc, ok := h.(PreCommitter)
		if !ok {
			continue
		}
		proceed, err := pc.PreCommit(ctx, attempt)
		if err != nil {
			return false, err
		}
		if !proceed {
			return true, nil
		}
	}
	return false, nil
}

// RunPostCommit runs every PostCommitter in registration order. It does
// not recover panics, so a panicking hook stops the remaining hooks and
// the panic reaches the caller.
func (c *Chain) RunPostCommit(ctx context.Context, commit es.Commit) {
	for _, h := range c.hooks {
		if pc, ok := h.(PostCommitter); ok {
			pc.PostCommit(ctx, commit)
		}
	}
}

// RunSelect applies every Selecter to commit, left to right. ok is false
// if any hook drops the commit.
func (c *Chain) RunSelect(ctx context.Context, commit es.Commit) (out es.Commit, ok bool) {
	out = commit
	for _, h := range c.hooks {
		s, isSelecter := h.(Selecter)
		if !isSelecter {
			continue
		}
		out, ok = s.Select(ctx, out)
		if !ok {
			return es.Commit{}, false
		}
	}
	return out, true
}

// RunOnPurge fans a purge notification out to every Purger.
func (c *Chain) RunOnPurge(ctx context.Context, bucketID string) {
	for _, h := range c.hooks {
		if p, ok := h.(Purger); ok {
			p.OnPurge(ctx, bucketID)
		}
	}
}

// RunOnDeleteStream fans a stream-deletion notification out to every
// StreamDeleter.
func (c *Chain) RunOnDeleteStream(ctx context.Context, bucketID, streamID string) {
	for _, h := range c.hooks {
		if d, ok := h.(StreamDeleter); ok {
			d.OnDeleteStream(ctx, bucketID, streamID)
		}
	}
}

// Dispose calls Dispose on every Disposer in registration order,
// collecting but not short-circuiting on failures.
func (c *Chain) Dispose() []error {
	var errs []error
	for _, h := range c.hooks {
		if d, ok := h.(Disposer); ok {
			if err := d.Dispose(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}
