// Package store persists the run history event log in an embedded libSQL
// database. The log is append-only: every workflow run writes start,
// per-step and terminal events, and the query side reconstructs run and
// step views by replay.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
)

// LibSQL is the libSQL-backed run history store. It implements the
// executor's RunRecorder contract.
type LibSQL struct {
	db *sql.DB
}

// Open opens (or creates) a libSQL database at the given path and applies
// pending migrations. The path should be a file URI, e.g. "file:runs.db".
func Open(ctx context.Context, dbPath string) (*LibSQL, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow either way.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	s := &LibSQL{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQL) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQL) Close() error { return s.db.Close() }

// Migrate applies all pending migrations.
func (s *LibSQL) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQL) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}
