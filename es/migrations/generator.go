// Package migrations provides SQL migration generation for event sourcing infrastructure.
package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// CommitsTable is the name of the durable commits table
	CommitsTable string

	// SnapshotsTable is the name of the snapshots table
	SnapshotsTable string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_event_store.sql", timestamp),
		CommitsTable:   "commits",
		SnapshotsTable: "snapshots",
	}
}

// DefaultSnapshotsConfig returns the default configuration for a
// snapshots-only migration, for callers adding snapshot support to an
// existing commits table.
func DefaultSnapshotsConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_add_snapshots.sql", timestamp),
		SnapshotsTable: "snapshots",
	}
}

func writeFile(config *Config, sql string) error {
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}
	return nil
}

// GeneratePostgres generates a PostgreSQL migration file for the commits
// and snapshots tables.
func GeneratePostgres(config *Config) error {
	return writeFile(config, generatePostgresSQL(config))
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Infrastructure Migration
-- Generated: %s

-- Commits table stores one row per durable commit, append-only.
-- Events within a commit are stored as a single JSONB array; the core
-- never inspects event bodies, so no per-event columns are needed.
CREATE TABLE IF NOT EXISTS %s (
    checkpoint_token BIGSERIAL PRIMARY KEY,
    bucket_id TEXT NOT NULL,
    stream_id TEXT NOT NULL,
    stream_revision BIGINT NOT NULL,
    commit_sequence BIGINT NOT NULL,
    commit_id UUID NOT NULL,
    commit_stamp TIMESTAMPTZ NOT NULL,
    headers JSONB NOT NULL DEFAULT '{}',
    events JSONB NOT NULL,

    UNIQUE (bucket_id, stream_id, commit_sequence),
    UNIQUE (bucket_id, stream_id, commit_id)
);

-- Index for stream revision range reads (Persistence.GetFrom)
CREATE INDEX IF NOT EXISTS idx_%s_stream_revision
    ON %s (bucket_id, stream_id, stream_revision);

-- Index for checkpoint iteration across a bucket (Persistence.GetFromCheckpoint)
CREATE INDEX IF NOT EXISTS idx_%s_bucket_checkpoint
    ON %s (bucket_id, checkpoint_token);

-- Snapshots table stores a cached fold per (bucket, stream, revision).
-- Multiple snapshots per stream may coexist.
CREATE TABLE IF NOT EXISTS %s (
    bucket_id TEXT NOT NULL,
    stream_id TEXT NOT NULL,
    stream_revision BIGINT NOT NULL,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (bucket_id, stream_id, stream_revision)
);

-- Index for "highest snapshot <= bound" lookups
CREATE INDEX IF NOT EXISTS idx_%s_lookup
    ON %s (bucket_id, stream_id, stream_revision DESC);
`,
		time.Now().Format(time.RFC3339),
		config.CommitsTable,
		config.CommitsTable, config.CommitsTable,
		config.CommitsTable, config.CommitsTable,
		config.SnapshotsTable,
		config.SnapshotsTable, config.SnapshotsTable,
	)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return writeFile(config, generateSQLiteSQL(config))
}

func generateSQLiteSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Infrastructure Migration for SQLite
-- Generated: %s

CREATE TABLE IF NOT EXISTS %s (
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
);

CREATE INDEX IF NOT EXISTS idx_%s_stream_revision
    ON %s (bucket_id, stream_id, stream_revision);

CREATE INDEX IF NOT EXISTS idx_%s_bucket_checkpoint
    ON %s (bucket_id, checkpoint_token);

CREATE TABLE IF NOT EXISTS %s (
    bucket_id TEXT NOT NULL,
    stream_id TEXT NOT NULL,
    stream_revision INTEGER NOT NULL,
    payload BLOB NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),

    PRIMARY KEY (bucket_id, stream_id, stream_revision)
);

CREATE INDEX IF NOT EXISTS idx_%s_lookup
    ON %s (bucket_id, stream_id, stream_revision DESC);
`,
		time.Now().Format(time.RFC3339),
		config.CommitsTable,
		config.CommitsTable, config.CommitsTable,
		config.CommitsTable, config.CommitsTable,
		config.SnapshotsTable,
		config.SnapshotsTable, config.SnapshotsTable,
	)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return writeFile(config, generateMySQLSQL(config))
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Infrastructure Migration for MySQL/MariaDB
-- Generated: %s

CREATE TABLE IF NOT EXISTS %s (
    checkpoint_token BIGINT AUTO_INCREMENT PRIMARY KEY,
    bucket_id VARCHAR(255) NOT NULL,
    stream_id VARCHAR(255) NOT NULL,
    stream_revision BIGINT NOT NULL,
    commit_sequence BIGINT NOT NULL,
    commit_id BINARY(16) NOT NULL,
    commit_stamp TIMESTAMP(6) NOT NULL,
    headers JSON NOT NULL,
    events JSON NOT NULL,

    UNIQUE KEY unique_commit_sequence (bucket_id, stream_id, commit_sequence),
    UNIQUE KEY unique_commit_id (bucket_id, stream_id, commit_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE INDEX idx_%s_stream_revision
    ON %s (bucket_id, stream_id, stream_revision);

CREATE INDEX idx_%s_bucket_checkpoint
    ON %s (bucket_id, checkpoint_token);

CREATE TABLE IF NOT EXISTS %s (
    bucket_id VARCHAR(255) NOT NULL,
    stream_id VARCHAR(255) NOT NULL,
    stream_revision BIGINT NOT NULL,
    payload BLOB NOT NULL,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    PRIMARY KEY (bucket_id, stream_id, stream_revision)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE INDEX idx_%s_lookup
    ON %s (bucket_id, stream_id, stream_revision);
`,
		time.Now().Format(time.RFC3339),
		config.CommitsTable,
		config.CommitsTable, config.CommitsTable,
		config.CommitsTable, config.CommitsTable,
		config.SnapshotsTable,
		config.SnapshotsTable, config.SnapshotsTable,
	)
}

// GenerateSnapshotsPostgres generates a standalone snapshots-table
// migration for Postgres, for callers that already have a commits table.
func GenerateSnapshotsPostgres(config Config) error {
	sql := fmt.Sprintf(`-- Snapshots Table Migration
-- Generated: %s

CREATE TABLE IF NOT EXISTS %s (
    bucket_id TEXT NOT NULL,
    stream_id TEXT NOT NULL,
    stream_revision BIGINT NOT NULL,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (bucket_id, stream_id, stream_revision)
);

CREATE INDEX IF NOT EXISTS idx_%s_lookup
    ON %s (bucket_id, stream_id, stream_revision DESC);
`,
		time.Now().Format(time.RFC3339),
		config.SnapshotsTable,
		config.SnapshotsTable, config.SnapshotsTable,
	)
	return writeFile(&config, sql)
}
