package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
	"github.com/Moziba-Labs/likelemba/core/pkg/movement"
)

func TestReconcilerConfirmsPending(t *testing.T) {
	s := ledger.NewMemoryStore()
	r := NewReconciler(s, movement.NewEngine(s))
	ctx := context.Background()

	require.NoError(t, s.InsertTransaction(ctx, &ledger.Transaction{
		ID: "t-1", WalletID: "w-1", UserID: "u-1", Kind: ledger.KindContribution,
		AmountMinor: 5000, Currency: "XAF", Status: ledger.StatusPending, Reference: "pi_1",
	}))

	res, err := r.Apply(ctx, Event{Type: EventPaymentSucceeded, Reference: "pi_1"})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	tx, _ := s.GetTransaction(ctx, "t-1")
	assert.Equal(t, ledger.StatusConfirmed, tx.Status)

	// Redelivery is a duplicate, not a second application.
	res, err = r.Apply(ctx, Event{Type: EventPaymentSucceeded, Reference: "pi_1"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestReconcilerFailsPending(t *testing.T) {
	s := ledger.NewMemoryStore()
	r := NewReconciler(s, movement.NewEngine(s))
	ctx := context.Background()

	require.NoError(t, s.InsertTransaction(ctx, &ledger.Transaction{
		ID: "t-1", WalletID: "w-1", UserID: "u-1", Kind: ledger.KindContribution,
		AmountMinor: 5000, Currency: "XAF", Status: ledger.StatusPending, Reference: "pi_1",
	}))

	res, err := r.Apply(ctx, Event{Type: EventPaymentFailed, Reference: "pi_1"})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	tx, _ := s.GetTransaction(ctx, "t-1")
	assert.Equal(t, ledger.StatusFailed, tx.Status)
}

func TestReconcilerUnknownSuccessCreatesDeposit(t *testing.T) {
	s := ledger.NewMemoryStore()
	r := NewReconciler(s, movement.NewEngine(s))
	ctx := context.Background()

	ev := Event{Type: EventPaymentSucceeded, Reference: "pi_new", UserID: "u-1", AmountMinor: 2000, Currency: "XAF"}

	res, err := r.Apply(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	w, err := s.GetWalletByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), w.BalanceMinor)

	// Redelivered: exactly-once via the reference key.
	res, err = r.Apply(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	w, _ = s.GetWalletByUser(ctx, "u-1")
	assert.Equal(t, int64(2000), w.BalanceMinor)
}

func TestReconcilerUnmatched(t *testing.T) {
	s := ledger.NewMemoryStore()
	r := NewReconciler(s, movement.NewEngine(s))
	ctx := context.Background()

	res, err := r.Apply(ctx, Event{Type: EventPayoutPaid, Reference: "po_unknown"})
	require.NoError(t, err)
	assert.True(t, res.Unmatched)

	_, err = r.Apply(ctx, Event{Type: EventPaymentSucceeded})
	assert.Error(t, err, "missing reference is rejected")
}

func TestStubGateway(t *testing.T) {
	g := NewStub()
	ctx := context.Background()
	amount := finance.New(5000, "XAF")

	ch, err := g.CreateOffSessionCharge(ctx, "cus_1", "pm_1", amount, ChargeMetadata{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, ChargeSucceeded, ch.Status)

	g.Decline("cus_2")
	ch, err = g.CreateOffSessionCharge(ctx, "cus_2", "pm_2", amount, ChargeMetadata{UserID: "u-2"})
	require.NoError(t, err)
	assert.Equal(t, ChargeFailed, ch.Status)

	g.FailWith("cus_3", assert.AnError)
	_, err = g.CreateOffSessionCharge(ctx, "cus_3", "pm_3", amount, ChargeMetadata{UserID: "u-3"})
	assert.ErrorIs(t, err, ErrGateway)

	assert.Equal(t, 2, g.ChargeCount())
}
