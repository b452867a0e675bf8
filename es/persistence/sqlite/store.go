// Package sqlite provides a SQLite implementation of the persistence
// contract (es/persistence.Persistence), useful for embedded deployments
// and tests that want durability without a network dependency.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parchment-es/eventstore/es"
	"github.com/parchment-es/eventstore/es/persistence/sqlrow"
)

// StoreConfig contains configuration for the SQLite persistence adapter.
type StoreConfig struct {
	CommitsTable   string
	SnapshotsTable string
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CommitsTable: "commits", SnapshotsTable: "snapshots"}
}

// Store is a SQLite-backed persistence.Persistence implementation.
// SQLite serializes writers at the database level, so each Commit still
// runs as its own statement rather than a held transaction.
type Store struct {
	db     *sql.DB
	config StoreConfig
}

// New creates a SQLite-backed Store over db. Callers should open db with
// a single connection (or set MaxOpenConns(1)); SQLite does not support
// concurrent writers.
func New(db *sql.DB, config StoreConfig) *Store {
	return &Store{db: db, config: config}
}

// Initialize implements persistence.Persistence.
func (s *Store) Initialize(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			checkpoint_token INTEGER PRIMARY KEY AUTOINCREMENT,
			bucket_id TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			stream_revision INTEGER NOT NULL,
			commit_sequence INTEGER NOT NULL,
			commit_id TEXT NOT NULL,
			commit_stamp TEXT NOT NULL,
			headers TEXT NOT NULL DEFAULT '{}',
			events TEXT NOT NULL,
			UNIQUE (bucket_id, stream_id, commit_sequence),
			UNIQUE (bucket_id, stream_id, commit_id)
		)`, s.config.CommitsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_stream_revision ON %s (bucket_id, stream_id, stream_revision)`,
			s.config.CommitsTable, s.config.CommitsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_bucket_checkpoint ON %s (bucket_id, checkpoint_token)`,
			s.config.CommitsTable, s.config.CommitsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			bucket_id TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			stream_revision INTEGER NOT NULL,
			payload BLOB NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (bucket_id, stream_id, stream_revision)
		)`, s.config.SnapshotsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_lookup ON %s (bucket_id, stream_id, stream_revision DESC)`,
			s.config.SnapshotsTable, s.config.SnapshotsTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
	}
	return nil
}

// Commit implements persistence.Persistence.
func (s *Store) Commit(ctx context.Context, attempt es.CommitAttempt) (es.Commit, error) {
	if err := attempt.Validate(); err != nil {
		return es.Commit{}, err
	}

	eventsJSON, err := sqlrow.EncodeEvents(attempt.Events)
	if err != nil {
		return es.Commit{}, err
	}
	headersJSON, err := sqlrow.EncodeHeaders(attempt.Headers)
	if err != nil {
		return es.Commit{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			bucket_id, stream_id, stream_revision, commit_sequence,
			commit_id, commit_stamp, headers, events
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.config.CommitsTable)

	result, err := s.db.ExecContext(ctx, query,
		attempt.BucketID, attempt.StreamID, attempt.StreamRevision, attempt.CommitSequence,
		attempt.CommitID.String(), attempt.CommitStamp.Format(time.RFC3339Nano), headersJSON, eventsJSON,
	)
	if err != nil {
		if conflict := classifyViolation(err, attempt); conflict != nil {
			return es.Commit{}, conflict
		}
		return es.Commit{}, &es.StorageUnavailableError{Err: err}
	}

	checkpoint, err := result.LastInsertId()
	if err != nil {
		return es.Commit{}, &es.StorageUnavailableError{Err: err}
	}

	return es.Commit{
		BucketID:        attempt.BucketID,
		StreamID:        attempt.StreamID,
		StreamRevision:  attempt.StreamRevision,
		CommitSequence:  attempt.CommitSequence,
		CommitID:        attempt.CommitID,
		CommitStamp:     attempt.CommitStamp,
		Headers:         attempt.Headers,
		Events:          attempt.Events,
		CheckpointToken: checkpoint,
	}, nil
}

// classifyViolation relies on go-sqlite3's error text, since the driver
// does not expose a structured constraint name the way lib/pq does.
func classifyViolation(err error, attempt es.CommitAttempt) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	if strings.Contains(msg, "commit_id") {
		return &es.DuplicateCommitError{
			BucketID: attempt.BucketID,
			StreamID: attempt.StreamID,
			CommitID: attempt.CommitID.String(),
		}
	}
	return &es.ConcurrencyConflictError{
		BucketID: attempt.BucketID,
		StreamID: attempt.StreamID,
		Reason:   "unique constraint violation: " + msg,
	}
}

// GetFrom implements persistence.Persistence.
func (s *Store) GetFrom(ctx context.Context, bucketID, streamID string, minRevision, maxRevision int64) ([]es.Commit, error) {
	query := fmt.Sprintf(`
		SELECT checkpoint_token, bucket_id, stream_id, stream_revision, commit_sequence,
			commit_id, commit_stamp, headers, events
		FROM %s
		WHERE bucket_id = ? AND stream_id = ?
		  AND stream_revision >= ?
		ORDER BY commit_sequence ASC
	`, s.config.CommitsTable)

	rows, err := s.db.QueryContext(ctx, query, bucketID, streamID, minRevision)
	if err != nil {
		return nil, &es.StorageUnavailableError{Err: err}
	}
	defer rows.Close()

	commits, err := scanCommits(rows)
	if err != nil {
		return nil, err
	}
	if maxRevision <= 0 {
		return commits, nil
	}
	filtered := commits[:0]
	for _, c := range commits {
		if c.PreviousStreamRevision()+1 <= maxRevision {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// GetFromCheckpoint implements persistence.Persistence.
func (s *Store) GetFromCheckpoint(ctx context.Context, bucketID string, checkpoint int64) ([]es.Commit, error) {
	query := fmt.Sprintf(`
		SELECT checkpoint_token, bucket_id, stream_id, stream_revision, commit_sequence,
			commit_id, commit_stamp, headers, events
		FROM %s
		WHERE bucket_id = ? AND checkpoint_token > ?
		ORDER BY checkpoint_token ASC
	`, s.config.CommitsTable)

	rows, err := s.db.QueryContext(ctx, query, bucketID, checkpoint)
	if err != nil {
		return nil, &es.StorageUnavailableError{Err: err}
	}
	defer rows.Close()

	return scanCommits(rows)
}

func scanCommits(rows *sql.Rows) ([]es.Commit, error) {
	var commits []es.Commit
	for rows.Next() {
		var (
			c              es.Commit
			commitIDStr    string
			commitStampStr string
			headersBytes   []byte
			eventsBytes    []byte
		)
		if err := rows.Scan(&c.CheckpointToken, &c.BucketID, &c.StreamID, &c.StreamRevision, &c.CommitSequence,
			&commitIDStr, &commitStampStr, &headersBytes, &eventsBytes); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		id, err := uuid.Parse(commitIDStr)
		if err != nil {
			return nil, fmt.Errorf("decode commit id: %w", err)
		}
		c.CommitID = id
		stamp, err := time.Parse(time.RFC3339Nano, commitStampStr)
		if err != nil {
			return nil, fmt.Errorf("decode commit stamp: %w", err)
		}
		c.CommitStamp = stamp
		headers, err := sqlrow.DecodeHeaders(headersBytes)
		if err != nil {
			return nil, err
		}
		c.Headers = headers
		events, err := sqlrow.DecodeEvents(eventsBytes)
		if err != nil {
			return nil, err
		}
		c.Events = events
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return commits, nil
}

// GetSnapshot implements persistence.Persistence.
func (s *Store) GetSnapshot(ctx context.Context, bucketID, streamID string, maxRevision int64) (es.Snapshot, bool, error) {
	query := fmt.Sprintf(`
		SELECT stream_revision, payload
		FROM %s
		WHERE bucket_id = ? AND stream_id = ? AND (? <= 0 OR stream_revision <= ?)
		ORDER BY stream_revision DESC
		LIMIT 1
	`, s.config.SnapshotsTable)

	var snap es.Snapshot
	snap.BucketID, snap.StreamID = bucketID, streamID
	err := s.db.QueryRowContext(ctx, query, bucketID, streamID, maxRevision, maxRevision).Scan(&snap.StreamRevision, &snap.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return es.Snapshot{}, false, nil
		}
		return es.Snapshot{}, false, &es.StorageUnavailableError{Err: err}
	}
	return snap, true, nil
}

// AddSnapshot implements persistence.Persistence.
func (s *Store) AddSnapshot(ctx context.Context, snap es.Snapshot) (bool, error) {
	var headRevision sql.NullInt64
	headQuery := fmt.Sprintf(`SELECT MAX(stream_revision) FROM %s WHERE bucket_id = ? AND stream_id = ?`, s.config.CommitsTable)
	if err := s.db.QueryRowContext(ctx, headQuery, snap.BucketID, snap.StreamID).Scan(&headRevision); err != nil {
		return false, &es.StorageUnavailableError{Err: err}
	}
	if !headRevision.Valid {
		return false, nil
	}

	var newer int
	staleQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE bucket_id = ? AND stream_id = ? AND stream_revision >= ?`, s.config.SnapshotsTable)
	if err := s.db.QueryRowContext(ctx, staleQuery, snap.BucketID, snap.StreamID, snap.StreamRevision).Scan(&newer); err != nil {
		return false, &es.StorageUnavailableError{Err: err}
	}
	if newer > 0 {
		return false, nil
	}

	insertQuery := fmt.Sprintf(`
		INSERT OR IGNORE INTO %s (bucket_id, stream_id, stream_revision, payload)
		VALUES (?, ?, ?, ?)
	`, s.config.SnapshotsTable)
	result, err := s.db.ExecContext(ctx, insertQuery, snap.BucketID, snap.StreamID, snap.StreamRevision, snap.Payload)
	if err != nil {
		return false, &es.StorageUnavailableError{Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, &es.StorageUnavailableError{Err: err}
	}
	return affected > 0, nil
}

// GetStreamsToSnapshot implements persistence.Persistence.
func (s *Store) GetStreamsToSnapshot(ctx context.Context, bucketID string, minThreshold int64) ([]es.StreamHead, error) {
	query := fmt.Sprintf(`
		SELECT c.stream_id, MAX(c.stream_revision) AS head_revision, COALESCE(MAX(s.stream_revision), 0) AS snapshot_revision
		FROM %s c
		LEFT JOIN %s s ON s.bucket_id = c.bucket_id AND s.stream_id = c.stream_id
		WHERE c.bucket_id = ?
		GROUP BY c.stream_id
		HAVING MAX(c.stream_revision) - COALESCE(MAX(s.stream_revision), 0) >= ?
		ORDER BY c.stream_id
	`, s.config.CommitsTable, s.config.SnapshotsTable)

	rows, err := s.db.QueryContext(ctx, query, bucketID, minThreshold)
	if err != nil {
		return nil, &es.StorageUnavailableError{Err: err}
	}
	defer rows.Close()

	var heads []es.StreamHead
	for rows.Next() {
		h := es.StreamHead{BucketID: bucketID}
		if err := rows.Scan(&h.StreamID, &h.HeadRevision, &h.SnapshotRevision); err != nil {
			return nil, fmt.Errorf("scan stream head: %w", err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return heads, nil
}

// Purge implements persistence.Persistence.
func (s *Store) Purge(ctx context.Context, bucketID string) error {
	if bucketID == "" {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.config.CommitsTable)); err != nil {
			return &es.StorageUnavailableError{Err: err}
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.config.SnapshotsTable)); err != nil {
			return &es.StorageUnavailableError{Err: err}
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE bucket_id = ?`, s.config.CommitsTable), bucketID); err != nil {
		return &es.StorageUnavailableError{Err: err}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE bucket_id = ?`, s.config.SnapshotsTable), bucketID); err != nil {
		return &es.StorageUnavailableError{Err: err}
	}
	return nil
}

// Drop implements persistence.Persistence.
func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.config.CommitsTable)); err != nil {
		return &es.StorageUnavailableError{Err: err}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.config.SnapshotsTable)); err != nil {
		return &es.StorageUnavailableError{Err: err}
	}
	return nil
}

// DeleteStream implements persistence.Persistence.
func (s *Store) DeleteStream(ctx context.Context, bucketID, streamID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE bucket_id = ? AND stream_id = ?`, s.config.CommitsTable), bucketID, streamID); err != nil {
		return &es.StorageUnavailableError{Err: err}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE bucket_id = ? AND stream_id = ?`, s.config.SnapshotsTable), bucketID, streamID); err != nil {
		return &es.StorageUnavailableError{Err: err}
	}
	return nil
}
