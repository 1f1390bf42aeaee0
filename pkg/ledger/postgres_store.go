package ledger

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

// Migrate creates the ledger tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		balance_minor BIGINT NOT NULL DEFAULT 0 CHECK (balance_minor >= 0),
		currency TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency TEXT NOT NULL,
		balance_before BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		status TEXT NOT NULL,
		reference TEXT,
		fund_id TEXT,
		cycle_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		confirmed_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS transactions_reference_idx
		ON transactions (reference) WHERE reference IS NOT NULL AND reference <> '';
	CREATE INDEX IF NOT EXISTS transactions_user_idx ON transactions (user_id, created_at DESC);
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		sender_tx_id TEXT NOT NULL REFERENCES transactions(id),
		recipient_tx_id TEXT NOT NULL REFERENCES transactions(id),
		sender_user_id TEXT NOT NULL,
		recipient_user_id TEXT NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, balance_minor, currency, created_at, updated_at FROM wallets WHERE id = $1",
		walletID)
	return scanWallet(row)
}

func (s *PostgresStore) GetWalletByUser(ctx context.Context, userID string) (*Wallet, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, balance_minor, currency, created_at, updated_at FROM wallets WHERE user_id = $1",
		userID)
	return scanWallet(row)
}

func scanWallet(row *sql.Row) (*Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.BalanceMinor, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (s *PostgresStore) CreateWallet(ctx context.Context, w *Wallet) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO wallets (id, user_id, balance_minor, currency) VALUES ($1, $2, $3, $4)",
		w.ID, w.UserID, w.BalanceMinor, w.Currency)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// CompareAndSwapBalance performs the optimistic-lock-by-value update:
// the row is touched only when the stored balance still matches.
func (s *PostgresStore) CompareAndSwapBalance(ctx context.Context, walletID string, oldBalance, newBalance int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE wallets SET balance_minor = $1, updated_at = NOW() WHERE id = $2 AND balance_minor = $3",
		newBalance, walletID, oldBalance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleBalance
	}
	return nil
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO transactions (id, wallet_id, user_id, kind, amount_minor, currency,
			balance_before, balance_after, status, reference, fund_id, cycle_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13)
	`
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.WalletID, tx.UserID, tx.Kind, tx.AmountMinor, tx.Currency,
		tx.BalanceBefore, tx.BalanceAfter, tx.Status, tx.Reference, tx.FundID, tx.CycleID, createdAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, selectTransaction+" WHERE id = $1", txID)
	return scanTransaction(row)
}

func (s *PostgresStore) GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, selectTransaction+" WHERE reference = $1", reference)
	return scanTransaction(row)
}

const selectTransaction = `
	SELECT id, wallet_id, user_id, kind, amount_minor, currency,
		balance_before, balance_after, status,
		COALESCE(reference, ''), COALESCE(fund_id, ''), COALESCE(cycle_id, ''),
		created_at, confirmed_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var tx Transaction
	var confirmedAt sql.NullTime
	err := row.Scan(&tx.ID, &tx.WalletID, &tx.UserID, &tx.Kind, &tx.AmountMinor, &tx.Currency,
		&tx.BalanceBefore, &tx.BalanceAfter, &tx.Status,
		&tx.Reference, &tx.FundID, &tx.CycleID, &tx.CreatedAt, &confirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if confirmedAt.Valid {
		tx.ConfirmedAt = &confirmedAt.Time
	}
	return &tx, nil
}

func (s *PostgresStore) SetTransactionStatus(ctx context.Context, txID string, status TransactionStatus) error {
	var res sql.Result
	var err error
	if status == StatusConfirmed {
		res, err = s.db.ExecContext(ctx,
			"UPDATE transactions SET status = $1, confirmed_at = NOW() WHERE id = $2", status, txID)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE transactions SET status = $1 WHERE id = $2", status, txID)
	}
	if err != nil {
		return fmt.Errorf("failed to set transaction status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *PostgresStore) InsertTransfer(ctx context.Context, t *Transfer) error {
	query := `
		INSERT INTO transfers (id, sender_tx_id, recipient_tx_id, sender_user_id, recipient_user_id, amount_minor, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.SenderTxID, t.RecipientTxID, t.SenderUserID, t.RecipientUserID, t.AmountMinor, t.Currency)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		selectTransaction+" WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2", userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
