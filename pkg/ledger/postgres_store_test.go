package ledger

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreGetWalletByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "user_id", "balance_minor", "currency", "created_at", "updated_at"}).
		AddRow("w-1", "u-1", 2500, "XAF", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, balance_minor, currency, created_at, updated_at FROM wallets WHERE user_id = $1")).
		WithArgs("u-1").
		WillReturnRows(rows)

	w, err := store.GetWalletByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", w.ID)
	assert.Equal(t, int64(2500), w.BalanceMinor)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, balance_minor, currency, created_at, updated_at FROM wallets WHERE user_id = $1")).
		WithArgs("u-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance_minor", "currency", "created_at", "updated_at"}))

	_, err = store.GetWalletByUser(ctx, "u-2")
	assert.ErrorIs(t, err, ErrWalletNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCompareAndSwap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	query := regexp.QuoteMeta("UPDATE wallets SET balance_minor = $1, updated_at = NOW() WHERE id = $2 AND balance_minor = $3")

	mock.ExpectExec(query).
		WithArgs(int64(750), "w-1", int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.CompareAndSwapBalance(ctx, "w-1", 500, 750))

	// Zero rows affected means the compare value was stale.
	mock.ExpectExec(query).
		WithArgs(int64(900), "w-1", int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.CompareAndSwapBalance(ctx, "w-1", 500, 900), ErrStaleBalance)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WithArgs("t-1", "w-1", "u-1", string(KindContribution), int64(5000), "XAF",
			int64(10000), int64(5000), string(StatusConfirmed), "pi_abc", "f-1", "c-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx := &Transaction{
		ID: "t-1", WalletID: "w-1", UserID: "u-1", Kind: KindContribution,
		AmountMinor: 5000, Currency: "XAF", BalanceBefore: 10000, BalanceAfter: 5000,
		Status: StatusConfirmed, Reference: "pi_abc", FundID: "f-1", CycleID: "c-1",
	}
	require.NoError(t, store.InsertTransaction(ctx, tx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSetStatusConfirmed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET status = $1, confirmed_at = NOW() WHERE id = $2")).
		WithArgs(string(StatusConfirmed), "t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetTransactionStatus(ctx, "t-1", StatusConfirmed))
	assert.NoError(t, mock.ExpectationsWereMet())
}
