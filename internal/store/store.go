// Package store archives finished workflow runs in a SQLite database so
// transcripts and outcomes survive process restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pagewright/internal/conversation"
	"pagewright/internal/driver"
)

// ErrRunNotFound is returned when a run id has no archived record.
var ErrRunNotFound = errors.New("run not found")

// Run is one archived workflow run.
type Run struct {
	ID            string               `json:"id"`
	Request       string               `json:"request"`
	Outcome       driver.Outcome       `json:"outcome"`
	TurnCount     int                  `json:"turnCount"`
	FailureReason string               `json:"failureReason,omitempty"`
	Published     bool                 `json:"published"`
	CreatedAt     time.Time            `json:"createdAt"`
	History       conversation.History `json:"history,omitempty"`
}

// Store persists runs and their transcripts.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		outcome TEXT NOT NULL,
		turn_count INTEGER NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		published INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun archives a finished run and its full transcript. A generated id
// is assigned when the record has none.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, request, outcome, turn_count, failure_reason, published, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome=excluded.outcome,
			turn_count=excluded.turn_count,
			failure_reason=excluded.failure_reason,
			published=excluded.published`,
		run.ID, run.Request, string(run.Outcome), run.TurnCount,
		run.FailureReason, run.Published, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	for _, m := range run.History {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (run_id, seq, speaker, text) VALUES (?, ?, ?, ?)`,
			run.ID, m.Sequence, string(m.Speaker), m.Text)
		if err != nil {
			return fmt.Errorf("failed to save message %d: %w", m.Sequence, err)
		}
	}
	return tx.Commit()
}

// MarkPublished flags a run as published.
func (s *Store) MarkPublished(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET published = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun loads one run including its transcript.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{ID: id}
	var outcome string
	err := s.db.QueryRowContext(ctx, `
		SELECT request, outcome, turn_count, failure_reason, published, created_at
		FROM runs WHERE id = ?`, id).
		Scan(&run.Request, &outcome, &run.TurnCount, &run.FailureReason,
			&run.Published, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Outcome = driver.Outcome(outcome)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, speaker, text FROM messages WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m conversation.Message
		var speaker string
		if err := rows.Scan(&m.Sequence, &speaker, &m.Text); err != nil {
			return nil, err
		}
		m.Speaker = conversation.Speaker(speaker)
		run.History = append(run.History, m)
	}
	return run, rows.Err()
}

// ListRuns returns run summaries, newest first, without transcripts.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request, outcome, turn_count, failure_reason, published, created_at
		FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var outcome string
		if err := rows.Scan(&run.ID, &run.Request, &outcome, &run.TurnCount,
			&run.FailureReason, &run.Published, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Outcome = driver.Outcome(outcome)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
