// Package eventstore is the main entry point for the library. For the
// core functionality, see the es package and its subpackages:
//
//	es                  - core types: EventMessage, CommitAttempt, Commit, Snapshot
//	es/eventstore        - Store and Stream, the facade most callers use
//	es/persistence        - the abstract storage contract
//	es/persistence/memory - in-process reference adapter
//	es/persistence/postgres, mysql, sqlite - bundled SQL adapters
//	es/hooks              - pre/post-commit and read-path interceptor chains
//	es/concurrency        - the bundled optimistic concurrency hook
//	es/snapshot           - the bundled snapshot scheduler
//	es/migrations         - migration file generation
//
// Quick start:
//
//  1. Generate migrations:
//     go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -output migrations
//
//  2. Open a store and a stream:
//     store := eventstore.New(persistenceImpl, nil)
//     stream, _ := store.OpenStream(ctx, es.DefaultBucket, "order-42", 1, 0)
//     stream.Add(es.EventMessage{Body: payload})
//     commit, err := stream.CommitChanges(ctx, uuid.New())
package eventstore

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}
