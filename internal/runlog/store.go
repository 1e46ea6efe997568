// Package runlog persists run history in a small SQLite database so past
// preparation runs can be inspected from the CLI.
package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pagebind/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on incompatible schema changes. The history
// database is disposable, so a mismatch just asks the user to delete it.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible
// version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

// Run statuses persisted in the history database.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is one persisted run.
type Record struct {
	RunID            string
	SourceDir        string
	OutputDir        string
	Status           string
	Error            string
	TotalPages       int
	BlankSkipped     int
	PairsMerged      int
	PairsSeparated   int
	SingletonEmitted int
	PairFailures     int
	OutputUnits      int
	SpreadDetection  bool
	Elapsed          time.Duration
	CreatedAt        time.Time
}

// Store manages the run history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database under the configured
// log directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create history schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Record inserts one run. CreatedAt defaults to now when unset.
func (s *Store) Record(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, source_dir, output_dir, status, error,
			total_pages, blank_skipped, pairs_merged, pairs_separated,
			singleton_emitted, pair_failures, output_units,
			spread_detection, elapsed_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.SourceDir, rec.OutputDir, rec.Status, rec.Error,
		rec.TotalPages, rec.BlankSkipped, rec.PairsMerged, rec.PairsSeparated,
		rec.SingletonEmitted, rec.PairFailures, rec.OutputUnits,
		boolToInt(rec.SpreadDetection), rec.Elapsed.Milliseconds(),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source_dir, output_dir, status, error,
			total_pages, blank_skipped, pairs_merged, pairs_separated,
			singleton_emitted, pair_failures, output_units,
			spread_detection, elapsed_ms, created_at
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			spread    int
			elapsedMS int64
			createdAt string
		)
		if err := rows.Scan(
			&rec.RunID, &rec.SourceDir, &rec.OutputDir, &rec.Status, &rec.Error,
			&rec.TotalPages, &rec.BlankSkipped, &rec.PairsMerged, &rec.PairsSeparated,
			&rec.SingletonEmitted, &rec.PairFailures, &rec.OutputUnits,
			&spread, &elapsedMS, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.SpreadDetection = spread != 0
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
