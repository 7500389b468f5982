// Package history persists a journal of terminal ingest sessions so the CLI
// can answer "what did the box copy last week" after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"cardbox/internal/config"
)

// Entry is one recorded ingest session.
type Entry struct {
	ID           int64
	SessionID    string
	Source       string
	Outcome      string
	TotalFiles   int
	CopiedFiles  int
	SkippedFiles int
	ErrorFiles   int
	Message      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Stats aggregates the journal.
type Stats struct {
	Sessions    int
	CopiedFiles int
	ErrorFiles  int
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.HistoryDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
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
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS ingest_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    source TEXT NOT NULL,
    outcome TEXT NOT NULL,
    total_files INTEGER NOT NULL DEFAULT 0,
    copied_files INTEGER NOT NULL DEFAULT 0,
    skipped_files INTEGER NOT NULL DEFAULT 0,
    error_files INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingest_sessions_finished
    ON ingest_sessions (finished_at DESC);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Record inserts a terminal session into the journal.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	if entry.SessionID == "" {
		return 0, errors.New("session id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ingest_sessions (
            session_id, source, outcome, total_files, copied_files,
            skipped_files, error_files, message, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Source,
		entry.Outcome,
		entry.TotalFiles,
		entry.CopiedFiles,
		entry.SkippedFiles,
		entry.ErrorFiles,
		entry.Message,
		entry.StartedAt.UTC().Format(time.RFC3339Nano),
		entry.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns the newest entries, most recent first. limit <= 0 returns
// everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, session_id, source, outcome, total_files, copied_files,
        skipped_files, error_files, message, started_at, finished_at
        FROM ingest_sessions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished string
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.Source, &e.Outcome, &e.TotalFiles,
			&e.CopiedFiles, &e.SkippedFiles, &e.ErrorFiles, &e.Message,
			&started, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if e.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if e.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Totals aggregates the whole journal.
func (s *Store) Totals(ctx context.Context) (Stats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(copied_files), 0), COALESCE(SUM(error_files), 0)
         FROM ingest_sessions`)
	var stats Stats
	if err := row.Scan(&stats.Sessions, &stats.CopiedFiles, &stats.ErrorFiles); err != nil {
		return Stats{}, fmt.Errorf("aggregate sessions: %w", err)
	}
	return stats, nil
}
