package caution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL. The one-active-
// caution-per-membership invariant is a partial unique index.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the cautions table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS cautions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		fund_id TEXT NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL,
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS cautions_active_idx
		ON cautions (user_id, fund_id) WHERE status = 'blocked';`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, c *Caution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cautions (id, user_id, fund_id, amount_minor, currency, status, method, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		c.ID, c.UserID, c.FundID, c.AmountMinor, c.Currency, c.Status, c.Method, c.Reason)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrActiveExists
		}
		return fmt.Errorf("failed to insert caution: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActive(ctx context.Context, userID, fundID string) (*Caution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, fund_id, amount_minor, currency, status, method, COALESCE(reason, ''), created_at, resolved_at
		 FROM cautions WHERE user_id = $1 AND fund_id = $2 AND status = 'blocked'`,
		userID, fundID)
	var c Caution
	var resolvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.FundID, &c.AmountMinor, &c.Currency, &c.Status, &c.Method, &c.Reason, &c.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active caution: %w", err)
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, cautionID string, status Status, reason string, resolvedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cautions SET status = $1, reason = COALESCE(NULLIF($2, ''), reason), resolved_at = $3 WHERE id = $4`,
		status, reason, resolvedAt, cautionID)
	if err != nil {
		return fmt.Errorf("failed to resolve caution: %w", err)
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
