package movement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
)

func seedWallet(t *testing.T, s *ledger.MemoryStore, userID string, balance int64) {
	t.Helper()
	require.NoError(t, s.CreateWallet(context.Background(), &ledger.Wallet{
		ID: "w-" + userID, UserID: userID, BalanceMinor: balance, Currency: "XAF",
	}))
}

func TestMoveDepositCreatesWalletLazily(t *testing.T) {
	s := ledger.NewMemoryStore()
	e := NewEngine(s)
	ctx := context.Background()

	res, err := e.Move(ctx, Request{
		ToUserID:       "u-1",
		Amount:         finance.New(5000, "XAF"),
		Kind:           ledger.KindDeposit,
		IdempotencyKey: "pi_dep_1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Credit)
	assert.Nil(t, res.Debit)
	assert.Equal(t, int64(0), res.Credit.BalanceBefore)
	assert.Equal(t, int64(5000), res.Credit.BalanceAfter)
	assert.Equal(t, ledger.StatusConfirmed, res.Credit.Status)

	w, err := s.GetWalletByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), w.BalanceMinor)
}

func TestMoveInsufficientFunds(t *testing.T) {
	s := ledger.NewMemoryStore()
	seedWallet(t, s, "u-1", 100)
	e := NewEngine(s)

	_, err := e.Move(context.Background(), Request{
		FromUserID: "u-1",
		Amount:     finance.New(500, "XAF"),
		Kind:       ledger.KindWithdrawal,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	w, _ := s.GetWalletByUser(context.Background(), "u-1")
	assert.Equal(t, int64(100), w.BalanceMinor, "no partial debit")
}

func TestMoveTransferConservesBalance(t *testing.T) {
	s := ledger.NewMemoryStore()
	seedWallet(t, s, "alice", 10000)
	seedWallet(t, s, "bob", 0)
	e := NewEngine(s)
	ctx := context.Background()

	before := s.TotalBalance()

	res, err := e.Move(ctx, Request{
		FromUserID:     "alice",
		ToUserID:       "bob",
		Amount:         finance.New(2500, "XAF"),
		Kind:           ledger.KindTransferOut,
		IdempotencyKey: "tr_1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Debit)
	require.NotNil(t, res.Credit)
	require.NotNil(t, res.Transfer)
	assert.Equal(t, ledger.KindTransferOut, res.Debit.Kind)
	assert.Equal(t, ledger.KindTransferIn, res.Credit.Kind)

	assert.Equal(t, before, s.TotalBalance(), "internal transfer must conserve the total")

	alice, _ := s.GetWalletByUser(ctx, "alice")
	bob, _ := s.GetWalletByUser(ctx, "bob")
	assert.Equal(t, int64(7500), alice.BalanceMinor)
	assert.Equal(t, int64(2500), bob.BalanceMinor)
}

func TestMoveIdempotentReplay(t *testing.T) {
	s := ledger.NewMemoryStore()
	e := NewEngine(s)
	ctx := context.Background()

	req := Request{
		ToUserID:       "u-1",
		Amount:         finance.New(3000, "XAF"),
		Kind:           ledger.KindDeposit,
		IdempotencyKey: "pi_42",
	}

	first, err := e.Move(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := e.Move(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	require.NotNil(t, second.Credit)
	assert.Equal(t, first.Credit.ID, second.Credit.ID)

	w, _ := s.GetWalletByUser(ctx, "u-1")
	assert.Equal(t, int64(3000), w.BalanceMinor, "exactly one balance change")

	txs, _ := s.ListTransactionsByUser(ctx, "u-1", 10)
	assert.Len(t, txs, 1, "exactly one transaction")
}

func TestMoveValidation(t *testing.T) {
	e := NewEngine(ledger.NewMemoryStore())
	ctx := context.Background()

	cases := []Request{
		{Amount: finance.New(100, "XAF"), Kind: ledger.KindDeposit},                                           // no parties
		{FromUserID: "u-1", ToUserID: "u-1", Amount: finance.New(100, "XAF"), Kind: ledger.KindTransferOut},   // self transfer
		{ToUserID: "u-1", Amount: finance.New(0, "XAF"), Kind: ledger.KindDeposit},                            // zero amount
		{ToUserID: "u-1", Amount: finance.New(-5, "XAF"), Kind: ledger.KindDeposit},                           // negative amount
		{ToUserID: "u-1", Amount: finance.Money{AmountMinor: 100}, Kind: ledger.KindDeposit},                  // no currency
		{ToUserID: "u-1", Amount: finance.New(100, "XAF")},                                                    // no kind
	}
	for _, req := range cases {
		_, err := e.Move(ctx, req)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

// failingCreditStore wraps the memory store and rejects the wallet read
// for one user, simulating a credit leg failure after a debit applied.
type failingCreditStore struct {
	*ledger.MemoryStore
	failUser string
}

func (f *failingCreditStore) GetWalletByUser(ctx context.Context, userID string) (*ledger.Wallet, error) {
	if userID == f.failUser {
		return nil, errors.New("store unavailable")
	}
	return f.MemoryStore.GetWalletByUser(ctx, userID)
}

func TestMoveCreditFailureRollsBackDebit(t *testing.T) {
	mem := ledger.NewMemoryStore()
	seedWallet(t, mem, "alice", 10000)
	s := &failingCreditStore{MemoryStore: mem, failUser: "bob"}
	e := NewEngine(s)
	ctx := context.Background()

	_, err := e.Move(ctx, Request{
		FromUserID: "alice",
		ToUserID:   "bob",
		Amount:     finance.New(4000, "XAF"),
		Kind:       ledger.KindTransferOut,
	})
	require.Error(t, err)

	alice, _ := mem.GetWalletByUser(ctx, "alice")
	assert.Equal(t, int64(10000), alice.BalanceMinor, "debit leg must be rolled back")

	txs, _ := mem.ListTransactionsByUser(ctx, "alice", 10)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.StatusFailed, txs[0].Status)
}

func TestMoveConcurrentDebits(t *testing.T) {
	s := ledger.NewMemoryStore()
	seedWallet(t, s, "u-1", 10)
	e := NewEngine(s)
	ctx := context.Background()

	// 20 concurrent unit debits against a balance of 10: exactly 10
	// succeed, the rest fail with insufficient funds, balance ends at 0.
	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Move(ctx, Request{
				FromUserID: "u-1",
				Amount:     finance.New(1, "XAF"),
				Kind:       ledger.KindWithdrawal,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ledger.ErrStaleBalance))
		}
	}
	w, _ := s.GetWalletByUser(ctx, "u-1")
	assert.GreaterOrEqual(t, w.BalanceMinor, int64(0), "balance never negative")
	assert.Equal(t, int64(10)-int64(succeeded), w.BalanceMinor)
}
