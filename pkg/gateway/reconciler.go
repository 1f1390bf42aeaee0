package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
	"github.com/Moziba-Labs/likelemba/core/pkg/movement"
)

// EventType classifies webhook events the provider delivers.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventPayoutPaid       EventType = "payout.paid"
	EventPayoutFailed     EventType = "payout.failed"
)

// Event is one asynchronous result delivered by the provider webhook.
// Reference is the provider id also stored as the transaction's
// idempotency reference.
type Event struct {
	Type        EventType `json:"type"`
	Reference   string    `json:"reference"`
	UserID      string    `json:"user_id,omitempty"`
	AmountMinor int64     `json:"amount_minor,omitempty"`
	Currency    string    `json:"currency,omitempty"`
}

// ReconcileResult says what a webhook event did to the ledger.
type ReconcileResult struct {
	Applied   bool `json:"applied"`   // a transaction was confirmed, failed or created
	Duplicate bool `json:"duplicate"` // already applied earlier, ignored
	Unmatched bool `json:"unmatched"` // no transaction correlates, recorded for ops
}

// Mover is the slice of the movement engine the reconciler needs.
type Mover interface {
	Move(ctx context.Context, req movement.Request) (*movement.Result, error)
}

// Reconciler applies webhook events to the ledger exactly once by
// matching on the stored reference key and ignoring duplicates.
type Reconciler struct {
	store  ledger.Store
	mover  Mover
	logger *slog.Logger
}

// NewReconciler creates a webhook reconciler.
func NewReconciler(store ledger.Store, mover Mover) *Reconciler {
	return &Reconciler{
		store:  store,
		mover:  mover,
		logger: slog.Default().With("component", "gateway-reconciler"),
	}
}

// Apply processes one event. Safe under redelivery: a reference that
// already reached its terminal state is ignored.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (*ReconcileResult, error) {
	if ev.Reference == "" {
		return nil, fmt.Errorf("webhook event without reference")
	}

	tx, err := r.store.GetTransactionByReference(ctx, ev.Reference)
	switch {
	case err == nil:
		return r.applyToExisting(ctx, ev, tx)
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return r.applyToUnknown(ctx, ev)
	default:
		return nil, fmt.Errorf("reference lookup: %w", err)
	}
}

func (r *Reconciler) applyToExisting(ctx context.Context, ev Event, tx *ledger.Transaction) (*ReconcileResult, error) {
	if tx.Status != ledger.StatusPending {
		// Redelivered event for a settled transaction.
		return &ReconcileResult{Duplicate: true}, nil
	}

	switch ev.Type {
	case EventPaymentSucceeded, EventPayoutPaid:
		if err := r.store.SetTransactionStatus(ctx, tx.ID, ledger.StatusConfirmed); err != nil {
			return nil, fmt.Errorf("confirm transaction %s: %w", tx.ID, err)
		}
	case EventPaymentFailed, EventPayoutFailed:
		if err := r.store.SetTransactionStatus(ctx, tx.ID, ledger.StatusFailed); err != nil {
			return nil, fmt.Errorf("fail transaction %s: %w", tx.ID, err)
		}
	default:
		r.logger.WarnContext(ctx, "unknown webhook event type", "type", ev.Type, "reference", ev.Reference)
		return &ReconcileResult{Unmatched: true}, nil
	}

	r.logger.InfoContext(ctx, "webhook reconciled", "type", string(ev.Type), "tx_id", tx.ID)
	return &ReconcileResult{Applied: true}, nil
}

// applyToUnknown handles an event whose reference the ledger has never
// seen. A successful payment credits the user's wallet as a deposit;
// the movement engine's idempotency on the reference makes concurrent
// redelivery collapse to one transaction.
func (r *Reconciler) applyToUnknown(ctx context.Context, ev Event) (*ReconcileResult, error) {
	if ev.Type != EventPaymentSucceeded || ev.UserID == "" || ev.AmountMinor <= 0 {
		r.logger.WarnContext(ctx, "unmatched webhook event",
			"type", string(ev.Type), "reference", ev.Reference, "user_id", ev.UserID)
		return &ReconcileResult{Unmatched: true}, nil
	}

	res, err := r.mover.Move(ctx, movement.Request{
		ToUserID:       ev.UserID,
		Amount:         finance.New(ev.AmountMinor, ev.Currency),
		Kind:           ledger.KindDeposit,
		IdempotencyKey: ev.Reference,
		Meta:           movement.Metadata{Description: "gateway webhook deposit"},
	})
	if err != nil {
		return nil, fmt.Errorf("apply webhook deposit: %w", err)
	}
	if res.Replayed {
		return &ReconcileResult{Duplicate: true}, nil
	}
	return &ReconcileResult{Applied: true}, nil
}
