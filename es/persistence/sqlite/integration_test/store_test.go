// Package integration_test contains integration tests for the SQLite
// persistence adapter. SQLite is embedded, but the driver is cgo-based,
// so these tests run behind the integration build tag like the network
// adapters.
//
// Run with: go test -tags=integration ./es/persistence/sqlite/integration_test/...
//
//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/parchment-es/eventstore/es"
	"github.com/parchment-es/eventstore/es/persistence/sqlite"
)

func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbFile := fmt.Sprintf("/tmp/eventstore_test_%d.db", time.Now().UnixNano())
	t.Cleanup(func() { os.Remove(dbFile) })

	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	return db
}

func freshStore(t *testing.T) *sqlite.Store {
	t.Helper()
	db := getTestDB(t)
	t.Cleanup(func() { db.Close() })

	store := sqlite.New(db, sqlite.DefaultStoreConfig())
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return store
}

func attempt(bucket, stream string, sequence, revision int64, n int) es.CommitAttempt {
	events := make([]es.EventMessage, n)
	for i := range events {
		events[i] = es.EventMessage{Body: []byte(fmt.Sprintf(`{"n":%d}`, i))}
	}
	return es.CommitAttempt{
		BucketID:       bucket,
		StreamID:       stream,
		Events:         events,
		StreamRevision: revision,
		CommitSequence: sequence,
		CommitID:       uuid.New(),
		CommitStamp:    time.Now().UTC(),
		Headers:        map[string]any{"source": "integration-test"},
	}
}

func TestStore_CommitAndRead(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	if _, err := store.Commit(ctx, attempt(es.DefaultBucket, "order-1", 1, 2, 2)); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if _, err := store.Commit(ctx, attempt(es.DefaultBucket, "order-1", 2, 3, 1)); err != nil {
		t.Fatalf("second commit failed: %v", err)
	}

	commits, err := store.GetFrom(ctx, es.DefaultBucket, "order-1", 0, 0)
	if err != nil {
		t.Fatalf("GetFrom failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}
}

func TestStore_RevisionRangeFilter(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	if _, err := store.Commit(ctx, attempt(es.DefaultBucket, "order-2", 1, 2, 2)); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if _, err := store.Commit(ctx, attempt(es.DefaultBucket, "order-2", 2, 5, 3)); err != nil {
		t.Fatalf("second commit failed: %v", err)
	}

	commits, err := store.GetFrom(ctx, es.DefaultBucket, "order-2", 3, 4)
	if err != nil {
		t.Fatalf("GetFrom failed: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit intersecting [3,4], got %d", len(commits))
	}
}

func TestStore_ConcurrencyConflict(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	if _, err := store.Commit(ctx, attempt(es.DefaultBucket, "order-3", 1, 1, 1)); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	_, err := store.Commit(ctx, attempt(es.DefaultBucket, "order-3", 1, 1, 1))
	if err == nil {
		t.Fatal("expected concurrency conflict, got nil")
	}
	if _, ok := es.AsConcurrencyConflict(err); !ok {
		t.Errorf("expected *es.ConcurrencyConflictError, got %v", err)
	}
}

func TestStore_DuplicateCommit(t *testing.T) {
	store := freshStore(t)
	ctx := context.Background()

	a1 := attempt(es.DefaultBucket, "order-4", 1, 1, 1)
	if _, err := store.Commit(ctx, a1); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	retry := a1
	retry.CommitSequence = 2
	retry.StreamRevision = 2
	_, err := store.Commit(ctx, retry)
	if err == nil {
		t.Fatal("expected duplicate commit error, got nil")
	}
	if _, ok := es.AsDuplicateCommit(err); !ok {
		t.Errorf("expected *es.DuplicateCommitError, got %v", err)
	}
}
