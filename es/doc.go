// Package es provides the core types of the event store: the data that
// flows between a stream, the commit pipeline, and a persistence backend.
//
// # Overview
//
// This package defines the vocabulary every other package builds on:
//   - EventMessage: a single opaque domain event
//   - CommitAttempt: a client-built, not-yet-durable batch of events
//   - Commit: the durable record of an attempt, with a checkpoint assigned
//   - Snapshot: a cached fold of a stream up to some revision
//
// The subpackages layer behavior on top of these types:
//
//	es/persistence  - the abstract append-only log a backend must satisfy
//	es/hooks        - the pipeline interceptor chain and read-side decorator
//	es/concurrency  - the in-process optimistic-concurrency guard
//	es/eventstore   - the facade and the client-side Stream
//	es/snapshot     - threshold-triggered snapshot maintenance
//	es/codec        - the opaque payload encode/decode seam
//	es/clock        - the commit timestamp seam
//	es/logging      - the optional structured logging seam
//	es/migrations   - SQL DDL generation for the bundled adapters
//
// # Design Philosophy
//
// Clean architecture: es and its interface packages are storage-agnostic.
// Concrete backends live under es/persistence/<driver> and depend on es,
// never the reverse.
//
// Opaque payloads: EventMessage.Body is never inspected by the core. Callers
// choose their own encoding via the es/codec seam.
//
// No ambient transactions: every Commit is its own atomic unit. The core
// does not manage or enlist in outer transactions.
//
// # Quick Start
//
//  1. Generate database migrations:
//
//     go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -adapter postgres -output migrations
//
//  2. Apply migrations to your database.
//
//  3. Build a store over a persistence backend:
//
//     backend := postgres.New(db, postgres.DefaultStoreConfig())
//     store := eventstore.New(backend, []any{concurrency.New()})
//
//  4. Open or create a stream, add events, commit:
//
//     stream, _ := store.OpenStream(ctx, es.DefaultBucket, orderID, 1, 0)
//     stream.Add(es.EventMessage{Body: payload})
//     commit, err := stream.CommitChanges(ctx, uuid.New())
//
// # Optimistic Concurrency
//
// Concurrency is detected at commit time, not locked ahead of time. A
// commit is rejected with a *ConcurrencyConflictError when another commit
// has already claimed the same commit sequence or stream revision; the
// caller refreshes and decides whether to retry. A commit retried with the
// same commit id is treated as already-applied (a *DuplicateCommitError,
// swallowed by the stream).
package es
