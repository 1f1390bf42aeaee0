package penalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
	"github.com/Moziba-Labs/likelemba/core/pkg/movement"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

// Mover is the slice of the movement engine the settlement path needs.
type Mover interface {
	Move(ctx context.Context, req movement.Request) (*movement.Result, error)
}

// Engine applies and settles penalties.
type Engine struct {
	store  Store
	funds  tontine.Store
	mover  Mover
	clock  func() time.Time
	logger *slog.Logger
}

// NewEngine creates a penalty engine. mover may be nil when settlement
// is not needed (the sweep only applies).
func NewEngine(store Store, funds tontine.Store, mover Mover) *Engine {
	return &Engine{
		store:  store,
		funds:  funds,
		mover:  mover,
		clock:  time.Now,
		logger: slog.Default().With("component", "penalty"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Appliquer records a late fee for (userID, cycleID). A second call for
// the same pair is a no-op returning the existing record: the sweep may
// re-process a day. No money moves here; the debt is settled later by
// voluntary payment or caution seizure.
func (e *Engine) Appliquer(ctx context.Context, userID, fundID, cycleID string, amount finance.Money, reason string) (*Penalty, error) {
	if userID == "" || fundID == "" || cycleID == "" {
		return nil, fmt.Errorf("%w: missing id", movement.ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", movement.ErrValidation)
	}

	p := &Penalty{
		ID:          uuid.New().String(),
		UserID:      userID,
		FundID:      fundID,
		CycleID:     cycleID,
		AmountMinor: amount.AmountMinor,
		Currency:    amount.Currency,
		Reason:      reason,
		Status:      StatusApplied,
		CreatedAt:   e.clock(),
	}
	err := e.store.Insert(ctx, p)
	if errors.Is(err, ErrDuplicate) {
		existing, getErr := e.store.GetByUserCycle(ctx, userID, cycleID)
		if getErr != nil {
			return nil, fmt.Errorf("duplicate penalty yet lookup failed: %w", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "penalty applied",
		"user_id", userID, "cycle_id", cycleID, "amount", amount.String())
	return p, nil
}

// Regler settles an applied penalty: the fee moves from the member's
// wallet to the fund pot and the record flips to paid.
func (e *Engine) Regler(ctx context.Context, penaltyID string) (*Penalty, error) {
	p, err := e.store.Get(ctx, penaltyID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusPaid {
		return p, nil
	}
	if e.mover == nil || e.funds == nil {
		return nil, fmt.Errorf("settlement not configured")
	}

	fund, err := e.funds.GetFund(ctx, p.FundID)
	if err != nil {
		return nil, fmt.Errorf("resolve fund: %w", err)
	}

	_, err = e.mover.Move(ctx, movement.Request{
		FromUserID:     p.UserID,
		ToUserID:       fund.PotUserID,
		Amount:         finance.New(p.AmountMinor, p.Currency),
		Kind:           ledger.KindPenalty,
		IdempotencyKey: "penalty:" + p.ID,
		Meta:           movement.Metadata{FundID: p.FundID, CycleID: p.CycleID, Description: "late fee settlement"},
	})
	if err != nil {
		return nil, fmt.Errorf("settle penalty %s: %w", p.ID, err)
	}

	now := e.clock()
	if err := e.store.SetPaid(ctx, p.ID, now); err != nil {
		return nil, err
	}
	p.Status = StatusPaid
	p.PaidAt = &now

	e.logger.InfoContext(ctx, "penalty settled", "penalty_id", p.ID, "user_id", p.UserID)
	return p, nil
}
