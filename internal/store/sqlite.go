// Package store persists accepted dataset entries per run. The checkpoint
// file holds only identifiers and counters; the entries themselves live
// here, keyed by (run id, normalized title), so a resumed run rehydrates
// its accepted set without refetching.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/arvinsingh/fictech-harvester/internal/model"
)

// Run records one harvest run.
type Run struct {
	ID        string
	Seeds     []string
	Status    string
	StartedAt time.Time
}

// Run status values.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
)

// Store is the persistence interface for the harvest pipeline.
type Store interface {
	CreateRun(ctx context.Context, seeds []string) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	FinishRun(ctx context.Context, runID string, stats *model.RunStats) error

	InsertEntry(ctx context.Context, runID string, entry model.DatasetEntry) (bool, error)
	ListEntries(ctx context.Context, runID string) ([]model.DatasetEntry, error)
	CountEntries(ctx context.Context, runID string) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. The parent directory is created if missing.
func NewSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, eris.Wrapf(err, "store: create dir %s", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	seeds      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entries (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	title      TEXT NOT NULL,
	entry      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, title)
);

CREATE INDEX IF NOT EXISTS idx_entries_run_id ON entries(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, seeds []string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Seeds:     seeds,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, seeds, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, strings.Join(seeds, "\n"), run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, seeds, status, started_at FROM runs WHERE id = ?`, runID)

	var run Run
	var seeds string
	if err := row.Scan(&run.ID, &seeds, &run.Status, &run.StartedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("store: run %s not found", runID)
		}
		return nil, eris.Wrapf(err, "store: get run %s", runID)
	}
	if seeds != "" {
		run.Seeds = strings.Split(seeds, "\n")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, stats *model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "store: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ? WHERE id = ?`,
		RunStatusComplete, string(statsJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "store: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: run %s not found", runID)
	}
	return nil
}

// InsertEntry stores one accepted entry keyed by normalized title. It
// returns false when an entry with the same key already exists; the insert
// is ignored, keeping entries immutable once accepted.
func (s *SQLiteStore) InsertEntry(ctx context.Context, runID string, entry model.DatasetEntry) (bool, error) {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal entry")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO entries (run_id, title, entry, created_at) VALUES (?, ?, ?, ?)`,
		runID, model.NormalizeTitle(entry.Name), string(entryJSON), time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: insert entry %q", entry.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "store: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListEntries(ctx context.Context, runID string) ([]model.DatasetEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM entries WHERE run_id = ? ORDER BY title`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list entries for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.DatasetEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "store: scan entry")
		}
		var entry model.DatasetEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal entry")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "store: iterate entries")
}

func (s *SQLiteStore) CountEntries(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE run_id = ?`, runID).Scan(&n)
	return n, eris.Wrap(err, "store: count entries")
}
