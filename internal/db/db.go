package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/lineage/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the database file inside the base directory.
const FileName = "lineage.db"

// Init initializes the SQLite database at baseDir/lineage.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lineage.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create exports subdirectory
	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id            TEXT PRIMARY KEY,
		  repo_path     TEXT NOT NULL,
		  head          TEXT NOT NULL,
		  log_base      REAL NOT NULL,
		  threshold     REAL NOT NULL,
		  started_at    INTEGER NOT NULL,
		  finished_at   INTEGER,
		  files_total   INTEGER NOT NULL DEFAULT 0,
		  files_done    INTEGER NOT NULL DEFAULT 0,
		  files_skipped INTEGER NOT NULL DEFAULT 0,
		  files_failed  INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS file_scores (
		  run_id    TEXT NOT NULL,
		  file_path TEXT NOT NULL,
		  author    TEXT NOT NULL,
		  chars     INTEGER NOT NULL,
		  score     REAL NOT NULL,
		  PRIMARY KEY (run_id, file_path, author)
		);

		CREATE INDEX IF NOT EXISTS idx_file_scores_author
		ON file_scores(run_id, author);

		CREATE TABLE IF NOT EXISTS revision_scores (
		  run_id      TEXT NOT NULL,
		  file_path   TEXT NOT NULL,
		  seq         INTEGER NOT NULL,
		  commit_hash TEXT NOT NULL,
		  author      TEXT NOT NULL,
		  chars       INTEGER NOT NULL,
		  score       REAL NOT NULL,
		  PRIMARY KEY (run_id, file_path, seq, author)
		);

		CREATE TABLE IF NOT EXISTS commits (
		  run_id          TEXT NOT NULL,
		  file_path       TEXT NOT NULL,
		  seq             INTEGER NOT NULL,
		  hash            TEXT NOT NULL,
		  author_name     TEXT NOT NULL,
		  author_email    TEXT NOT NULL,
		  author_time     INTEGER NOT NULL,
		  committer_name  TEXT NOT NULL,
		  committer_email TEXT NOT NULL,
		  committer_time  INTEGER NOT NULL,
		  path            TEXT NOT NULL,
		  PRIMARY KEY (run_id, file_path, seq)
		);

		CREATE TABLE IF NOT EXISTS timings (
		  run_id      TEXT NOT NULL,
		  file_path   TEXT NOT NULL,
		  revisions   INTEGER NOT NULL,
		  avg_lines   REAL NOT NULL,
		  duration_ms INTEGER NOT NULL,
		  PRIMARY KEY (run_id, file_path)
		);

		CREATE TABLE IF NOT EXISTS failures (
		  run_id    TEXT NOT NULL,
		  file_path TEXT NOT NULL,
		  code      TEXT NOT NULL,
		  message   TEXT NOT NULL,
		  PRIMARY KEY (run_id, file_path)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
