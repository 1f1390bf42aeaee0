package penalty

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
	"github.com/Moziba-Labs/likelemba/core/pkg/movement"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

func TestAppliquerOncePerCycle(t *testing.T) {
	e := NewEngine(NewMemoryStore(), nil, nil)
	ctx := context.Background()
	fee := finance.New(1000, "XAF")

	first, err := e.Appliquer(ctx, "u-1", "f-1", "c-1", fee, "contribution 3 days late")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, first.Status)
	assert.Equal(t, int64(1000), first.AmountMinor)

	// The sweep may re-process the same day: same pair is a no-op
	// returning the original record.
	second, err := e.Appliquer(ctx, "u-1", "f-1", "c-1", fee, "contribution 3 days late")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different cycle gets its own penalty.
	other, err := e.Appliquer(ctx, "u-1", "f-1", "c-2", fee, "contribution 3 days late")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestAppliquerValidation(t *testing.T) {
	e := NewEngine(NewMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := e.Appliquer(ctx, "", "f-1", "c-1", finance.New(1000, "XAF"), "r")
	assert.ErrorIs(t, err, movement.ErrValidation)

	_, err = e.Appliquer(ctx, "u-1", "f-1", "c-1", finance.New(0, "XAF"), "r")
	assert.ErrorIs(t, err, movement.ErrValidation)
}

func TestReglerMovesFeeToPot(t *testing.T) {
	ctx := context.Background()
	ledgerStore := ledger.NewMemoryStore()
	funds := tontine.NewMemoryStore()
	require.NoError(t, funds.CreateFund(ctx, &tontine.Fund{
		ID: "f-1", Name: "Quartier", ContributionMinor: 5000, Currency: "XAF", PotUserID: "pot:f-1",
	}))
	mover := movement.NewEngine(ledgerStore)

	// Give the member a funded wallet.
	_, err := mover.Move(ctx, movement.Request{
		ToUserID: "u-1", Amount: finance.New(3000, "XAF"), Kind: ledger.KindDeposit,
	})
	require.NoError(t, err)

	e := NewEngine(NewMemoryStore(), funds, mover)
	p, err := e.Appliquer(ctx, "u-1", "f-1", "c-1", finance.New(1000, "XAF"), "late")
	require.NoError(t, err)

	settled, err := e.Regler(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, settled.Status)
	require.NotNil(t, settled.PaidAt)

	member, _ := ledgerStore.GetWalletByUser(ctx, "u-1")
	pot, _ := ledgerStore.GetWalletByUser(ctx, "pot:f-1")
	assert.Equal(t, int64(2000), member.BalanceMinor)
	assert.Equal(t, int64(1000), pot.BalanceMinor)

	// Settling again is a no-op.
	again, err := e.Regler(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, again.Status)
	member, _ = ledgerStore.GetWalletByUser(ctx, "u-1")
	assert.Equal(t, int64(2000), member.BalanceMinor)
}

func TestReglerInsufficientFundsKeepsDebt(t *testing.T) {
	ctx := context.Background()
	ledgerStore := ledger.NewMemoryStore()
	funds := tontine.NewMemoryStore()
	require.NoError(t, funds.CreateFund(ctx, &tontine.Fund{
		ID: "f-1", Name: "Quartier", Currency: "XAF", PotUserID: "pot:f-1",
	}))
	mover := movement.NewEngine(ledgerStore)

	e := NewEngine(NewMemoryStore(), funds, mover)
	p, err := e.Appliquer(ctx, "u-1", "f-1", "c-1", finance.New(1000, "XAF"), "late")
	require.NoError(t, err)

	_, err = e.Regler(ctx, p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, movement.ErrInsufficientFunds)

	got, err := e.store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, got.Status, "debt remains tracked")
}

func TestStoreSetPaid(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &Penalty{ID: "p-1", UserID: "u-1", FundID: "f-1", CycleID: "c-1",
		AmountMinor: 1000, Currency: "XAF", Status: StatusApplied}))

	unpaid, err := s.ListUnpaidByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, unpaid, 1)

	require.NoError(t, s.SetPaid(ctx, "p-1", time.Now()))

	unpaid, err = s.ListUnpaidByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	assert.ErrorIs(t, s.SetPaid(ctx, "missing", time.Now()), ErrNotFound)
}
