// Package history keeps a local SQLite log of finished runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/johnayoung/llm-verify/internal/session"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	question        TEXT NOT NULL,
	model           TEXT NOT NULL,
	status          TEXT NOT NULL,
	answer          TEXT NOT NULL DEFAULT '',
	agreement_count INTEGER NOT NULL DEFAULT 0,
	total_attempts  INTEGER NOT NULL DEFAULT 0,
	is_consensus    INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL,
	state           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// Entry is the list view of a stored run.
type Entry struct {
	ID             string        `json:"id"`
	Question       string        `json:"question"`
	Model          string        `json:"model"`
	Status         runner.Status `json:"status"`
	Answer         string        `json:"answer"`
	AgreementCount int           `json:"agreement_count"`
	TotalAttempts  int           `json:"total_attempts"`
	IsConsensus    bool          `json:"is_consensus"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
}

// Store is a SQLite-backed run log. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished run, replacing any earlier row with the same ID.
func (s *Store) Record(ctx context.Context, st session.State) error {
	if st.RunID == "" {
		return errors.New("recording run: empty run ID")
	}

	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", st.RunID, err)
	}

	var (
		answer      string
		agreement   int
		total       = len(st.Attempts)
		isConsensus bool
	)
	if c := st.Consensus; c != nil {
		agreement, total, isConsensus = c.AgreementCount, c.TotalAttempts, c.IsConsensus
		if c.Representative != nil {
			answer = c.Representative.Parsed.Answer
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, question, model, status, answer, agreement_count, total_attempts,
			 is_consensus, error, started_at, finished_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.RunID, st.Question, st.Model, st.Status.String(), answer, agreement, total,
		isConsensus, st.Error, st.StartedAt.UnixNano(), st.FinishedAt.UnixNano(), string(blob),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", st.RunID, err)
	}
	return nil
}

// List returns the most recent runs first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, model, status, answer, agreement_count, total_attempts,
		       is_consensus, error, started_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			status  string
			started int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Model, &status, &e.Answer,
			&e.AgreementCount, &e.TotalAttempts, &e.IsConsensus, &e.Error, &started); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if err := e.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, fmt.Errorf("run %s: %w", e.ID, err)
		}
		e.StartedAt = time.Unix(0, started)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the full stored state of a run.
func (s *Store) Get(ctx context.Context, id string) (session.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM runs WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return session.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return session.State{}, fmt.Errorf("loading run %s: %w", id, err)
	}

	var st session.State
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return session.State{}, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return st, nil
}
