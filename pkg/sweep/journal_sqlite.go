package sweep

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJournal persists the escalation guard and run log in an
// embedded SQLite database, the default for single-node deploys.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLiteJournal(db *sql.DB) (*SQLiteJournal, error) {
	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS sweep_entries (
        cycle_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        step TEXT NOT NULL,
        day TEXT NOT NULL,
        PRIMARY KEY (cycle_id, user_id)
    );
    CREATE TABLE IF NOT EXISTS sweep_runs (
        run_id TEXT PRIMARY KEY,
        started_at DATETIME NOT NULL,
        finished_at DATETIME NOT NULL,
        summary JSON
    );`
	_, err := j.db.ExecContext(context.Background(), query)
	return err
}

func (j *SQLiteJournal) GetEntry(ctx context.Context, cycleID, userID string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT step, day FROM sweep_entries WHERE cycle_id = ? AND user_id = ?`,
		cycleID, userID)
	e := &Entry{CycleID: cycleID, UserID: userID}
	err := row.Scan(&e.Step, &e.Day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sweep entry: %w", err)
	}
	return e, nil
}

func (j *SQLiteJournal) SetEntry(ctx context.Context, e *Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sweep_entries (cycle_id, user_id, step, day) VALUES (?, ?, ?, ?)
         ON CONFLICT (cycle_id, user_id) DO UPDATE SET step = excluded.step, day = excluded.day`,
		e.CycleID, e.UserID, string(e.Step), e.Day)
	if err != nil {
		return fmt.Errorf("write sweep entry: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) RecordRun(ctx context.Context, r *Run) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sweep_runs (run_id, started_at, finished_at, summary) VALUES (?, ?, ?, ?)`,
		r.ID,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Summary)
	if err != nil {
		return fmt.Errorf("record sweep run: %w", err)
	}
	return nil
}
