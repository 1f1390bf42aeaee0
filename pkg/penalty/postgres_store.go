package penalty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the penalties table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS penalties (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		fund_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		paid_at TIMESTAMPTZ,
		UNIQUE (user_id, cycle_id)
	);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, p *Penalty) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO penalties (id, user_id, fund_id, cycle_id, amount_minor, currency, reason, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.FundID, p.CycleID, p.AmountMinor, p.Currency, p.Reason, p.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert penalty: %w", err)
	}
	return nil
}

const selectPenalty = `
	SELECT id, user_id, fund_id, cycle_id, amount_minor, currency, COALESCE(reason, ''), status, created_at, paid_at
	FROM penalties`

func scanPenalty(row interface{ Scan(...any) error }) (*Penalty, error) {
	var p Penalty
	var paidAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.FundID, &p.CycleID, &p.AmountMinor, &p.Currency, &p.Reason, &p.Status, &p.CreatedAt, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan penalty: %w", err)
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return &p, nil
}

func (s *PostgresStore) Get(ctx context.Context, penaltyID string) (*Penalty, error) {
	return scanPenalty(s.db.QueryRowContext(ctx, selectPenalty+" WHERE id = $1", penaltyID))
}

func (s *PostgresStore) GetByUserCycle(ctx context.Context, userID, cycleID string) (*Penalty, error) {
	return scanPenalty(s.db.QueryRowContext(ctx, selectPenalty+" WHERE user_id = $1 AND cycle_id = $2", userID, cycleID))
}

func (s *PostgresStore) ListUnpaidByUser(ctx context.Context, userID string) ([]*Penalty, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPenalty+" WHERE user_id = $1 AND status = 'applied' ORDER BY created_at", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list penalties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetPaid(ctx context.Context, penaltyID string, paidAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE penalties SET status = 'paid', paid_at = $1 WHERE id = $2`, paidAt, penaltyID)
	if err != nil {
		return fmt.Errorf("failed to mark penalty paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
