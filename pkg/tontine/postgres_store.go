package tontine

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

// Migrate creates the tontine tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS funds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contribution_minor BIGINT NOT NULL,
		caution_minor BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		pot_user_id TEXT NOT NULL,
		tier TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS memberships (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		fund_id TEXT NOT NULL REFERENCES funds(id),
		status TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, fund_id)
	);
	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		fund_id TEXT NOT NULL REFERENCES funds(id),
		sequence INT NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		beneficiary_user_id TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contribution_payments (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL REFERENCES cycles(id),
		fund_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount_minor BIGINT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL,
		late BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at TIMESTAMPTZ NOT NULL,
		tx_id TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS payments_confirmed_idx
		ON contribution_payments (cycle_id, user_id) WHERE status = 'confirmed';
	CREATE TABLE IF NOT EXISTS defaillances (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		fund_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS payment_profiles (
		user_id TEXT PRIMARY KEY,
		customer_ref TEXT NOT NULL,
		method_ref TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) CreateFund(ctx context.Context, f *Fund) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO funds (id, name, contribution_minor, caution_minor, currency, pot_user_id, tier)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`,
		f.ID, f.Name, f.ContributionMinor, f.CautionMinor, f.Currency, f.PotUserID, f.Tier)
	if err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFund(ctx context.Context, fundID string) (*Fund, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, contribution_minor, caution_minor, currency, pot_user_id, COALESCE(tier, ''), created_at
		 FROM funds WHERE id = $1`, fundID)
	var f Fund
	err := row.Scan(&f.ID, &f.Name, &f.ContributionMinor, &f.CautionMinor, &f.Currency, &f.PotUserID, &f.Tier, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fund: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) CreateMembership(ctx context.Context, m *Membership) error {
	joinedAt := m.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (id, user_id, fund_id, status, joined_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.FundID, m.Status, joinedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, userID, fundID string) (*Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, fund_id, status, joined_at FROM memberships WHERE user_id = $1 AND fund_id = $2`,
		userID, fundID)
	var m Membership
	err := row.Scan(&m.ID, &m.UserID, &m.FundID, &m.Status, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) SetMembershipStatus(ctx context.Context, userID, fundID string, status MembershipStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET status = $1 WHERE user_id = $2 AND fund_id = $3`,
		status, userID, fundID)
	if err != nil {
		return fmt.Errorf("failed to set membership status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveMembers(ctx context.Context, fundID string) ([]*Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, fund_id, status, joined_at FROM memberships
		 WHERE fund_id = $1 AND status <> 'excluded' ORDER BY user_id`, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.FundID, &m.Status, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateCycle(ctx context.Context, c *Cycle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, fund_id, sequence, due_date, beneficiary_user_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.FundID, c.Sequence, c.DueDate, c.BeneficiaryUserID, c.Status)
	if err != nil {
		return fmt.Errorf("failed to create cycle: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCycle(ctx context.Context, cycleID string) (*Cycle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fund_id, sequence, due_date, beneficiary_user_id, status FROM cycles WHERE id = $1`,
		cycleID)
	var c Cycle
	err := row.Scan(&c.ID, &c.FundID, &c.Sequence, &c.DueDate, &c.BeneficiaryUserID, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListOpenCycles(ctx context.Context) ([]*Cycle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fund_id, sequence, due_date, beneficiary_user_id, status
		 FROM cycles WHERE status = 'open' ORDER BY due_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.ID, &c.FundID, &c.Sequence, &c.DueDate, &c.BeneficiaryUserID, &c.Status); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetCycleStatus(ctx context.Context, cycleID string, status CycleStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cycles SET status = $1 WHERE id = $2`, status, cycleID)
	if err != nil {
		return fmt.Errorf("failed to set cycle status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCycleNotFound
	}
	return nil
}

func (s *PostgresStore) RecordPayment(ctx context.Context, p *ContributionPayment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contribution_payments (id, cycle_id, fund_id, user_id, amount_minor, status, method, late, paid_at, tx_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))`,
		p.ID, p.CycleID, p.FundID, p.UserID, p.Amount, p.Status, p.Method, p.Late, p.PaidAt, p.TxID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConfirmedPayment(ctx context.Context, cycleID, userID string) (*ContributionPayment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cycle_id, fund_id, user_id, amount_minor, status, method, late, paid_at, COALESCE(tx_id, '')
		 FROM contribution_payments WHERE cycle_id = $1 AND user_id = $2 AND status = 'confirmed'`,
		cycleID, userID)
	var p ContributionPayment
	err := row.Scan(&p.ID, &p.CycleID, &p.FundID, &p.UserID, &p.Amount, &p.Status, &p.Method, &p.Late, &p.PaidAt, &p.TxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmed payment: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPaymentsByUser(ctx context.Context, userID string) ([]*ContributionPayment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle_id, fund_id, user_id, amount_minor, status, method, late, paid_at, COALESCE(tx_id, '')
		 FROM contribution_payments WHERE user_id = $1 ORDER BY paid_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ContributionPayment
	for rows.Next() {
		var p ContributionPayment
		if err := rows.Scan(&p.ID, &p.CycleID, &p.FundID, &p.UserID, &p.Amount, &p.Status, &p.Method, &p.Late, &p.PaidAt, &p.TxID); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateDefaillance(ctx context.Context, d *Defaillance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO defaillances (id, user_id, fund_id, cycle_id, reason) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.UserID, d.FundID, d.CycleID, d.Reason)
	if err != nil {
		return fmt.Errorf("failed to create defaillance: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountDefaillances(ctx context.Context, userID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM defaillances WHERE user_id = $1`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count defaillances: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SavePaymentProfile(ctx context.Context, p *PaymentProfile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_profiles (user_id, customer_ref, method_ref)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
			customer_ref = EXCLUDED.customer_ref,
			method_ref = EXCLUDED.method_ref`,
		p.UserID, p.CustomerRef, p.MethodRef)
	if err != nil {
		return fmt.Errorf("failed to save payment profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaymentProfile(ctx context.Context, userID string) (*PaymentProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, customer_ref, method_ref FROM payment_profiles WHERE user_id = $1`, userID)
	var p PaymentProfile
	err := row.Scan(&p.UserID, &p.CustomerRef, &p.MethodRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPaymentProfile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment profile: %w", err)
	}
	return &p, nil
}
