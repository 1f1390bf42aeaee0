package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreWalletLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetWalletByUser(ctx, "user-1")
	assert.ErrorIs(t, err, ErrWalletNotFound)

	w := &Wallet{ID: "w-1", UserID: "user-1", BalanceMinor: 0, Currency: "XAF"}
	require.NoError(t, s.CreateWallet(ctx, w))

	got, err := s.GetWalletByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "w-1", got.ID)
	assert.Equal(t, int64(0), got.BalanceMinor)
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateWallet(ctx, &Wallet{ID: "w-1", UserID: "u-1", BalanceMinor: 100, Currency: "XAF"}))

	require.NoError(t, s.CompareAndSwapBalance(ctx, "w-1", 100, 250))

	// Stale compare value must be rejected.
	err := s.CompareAndSwapBalance(ctx, "w-1", 100, 300)
	assert.ErrorIs(t, err, ErrStaleBalance)

	w, err := s.GetWallet(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), w.BalanceMinor)
}

func TestMemoryStoreDuplicateReference(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tx := &Transaction{ID: "t-1", WalletID: "w-1", UserID: "u-1", Kind: KindDeposit,
		AmountMinor: 100, Currency: "XAF", Status: StatusConfirmed, Reference: "pi_123"}
	require.NoError(t, s.InsertTransaction(ctx, tx))

	dup := &Transaction{ID: "t-2", WalletID: "w-1", UserID: "u-1", Kind: KindDeposit,
		AmountMinor: 100, Currency: "XAF", Status: StatusConfirmed, Reference: "pi_123"}
	assert.ErrorIs(t, s.InsertTransaction(ctx, dup), ErrDuplicateReference)

	got, err := s.GetTransactionByReference(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ID)
}

func TestMemoryStoreStatusTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	tx := &Transaction{ID: "t-1", WalletID: "w-1", UserID: "u-1", Kind: KindContribution,
		AmountMinor: 500, Currency: "XAF", Status: StatusPending}
	require.NoError(t, s.InsertTransaction(ctx, tx))

	require.NoError(t, s.SetTransactionStatus(ctx, "t-1", StatusConfirmed))
	got, err := s.GetTransaction(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, now, *got.ConfirmedAt)

	assert.ErrorIs(t, s.SetTransactionStatus(ctx, "missing", StatusFailed), ErrTransactionNotFound)
}

func TestMemoryStoreListByUser(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	ctx := context.Background()

	for i, id := range []string{"t-1", "t-2", "t-3"} {
		require.NoError(t, s.InsertTransaction(ctx, &Transaction{
			ID: id, WalletID: "w-1", UserID: "u-1", Kind: KindDeposit,
			AmountMinor: 100, Currency: "XAF", Status: StatusConfirmed,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	txs, err := s.ListTransactionsByUser(ctx, "u-1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t-3", txs[0].ID)
	assert.Equal(t, "t-2", txs[1].ID)
}
