// Package history records finished scheduler runs in a local SQLite database
// so past runs can be listed from the CLI.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id         TEXT PRIMARY KEY,
    graph          TEXT NOT NULL,
    state          TEXT NOT NULL,
    tasks          INTEGER NOT NULL,
    released       TEXT NOT NULL DEFAULT '',
    unreleased     TEXT NOT NULL DEFAULT '',
    max_concurrent INTEGER NOT NULL,
    output         TEXT NOT NULL DEFAULT '',
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER NOT NULL,
    error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// Run is one recorded scheduler run.
type Run struct {
	RunID         string
	Graph         string
	State         string
	Tasks         int
	Released      []uint32 // release order
	Unreleased    []uint32
	MaxConcurrent int
	Output        string // final shared state
	StartedAt     time.Time
	FinishedAt    time.Time
	Error         string
}

// Duration returns FinishedAt - StartedAt.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at dbPath, enables WAL mode
// and busy timeout, and creates the schema if needed.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	// SQLite has a single writer; one connection keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts r, replacing any earlier record with the same run id.
func (s *Store) Record(ctx context.Context, r Run) error {
	const q = `
		INSERT INTO runs (run_id, graph, state, tasks, released, unreleased,
		                  max_concurrent, output, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			graph          = excluded.graph,
			state          = excluded.state,
			tasks          = excluded.tasks,
			released       = excluded.released,
			unreleased     = excluded.unreleased,
			max_concurrent = excluded.max_concurrent,
			output         = excluded.output,
			started_at     = excluded.started_at,
			finished_at    = excluded.finished_at,
			error          = excluded.error`
	_, err := s.db.ExecContext(ctx, q,
		r.RunID, r.Graph, r.State, r.Tasks,
		joinIDs(r.Released), joinIDs(r.Unreleased),
		r.MaxConcurrent, r.Output,
		r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.Error,
	)
	if err != nil {
		return fmt.Errorf("history: record run %s: %w", r.RunID, err)
	}
	return nil
}

const selectRun = `
	SELECT run_id, graph, state, tasks, released, unreleased,
	       max_concurrent, output, started_at, finished_at, error
	FROM runs`

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+" WHERE run_id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("history: %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("history: get run %s: %w", runID, err)
	}
	return r, nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, selectRun+" ORDER BY started_at DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                    Run
		released, unreleased string
		started, finished    int64
	)
	err := sc.Scan(&r.RunID, &r.Graph, &r.State, &r.Tasks, &released, &unreleased,
		&r.MaxConcurrent, &r.Output, &started, &finished, &r.Error)
	if err != nil {
		return Run{}, err
	}
	if r.Released, err = splitIDs(released); err != nil {
		return Run{}, err
	}
	if r.Unreleased, err = splitIDs(unreleased); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	r.FinishedAt = time.Unix(0, finished)
	return r, nil
}

func joinIDs(ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]uint32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad id list %q: %w", s, err)
		}
		ids[i] = uint32(v)
	}
	return ids, nil
}
