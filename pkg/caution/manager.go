package caution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/gateway"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
	"github.com/Moziba-Labs/likelemba/core/pkg/movement"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

// Mover is the slice of the movement engine the manager needs.
type Mover interface {
	Move(ctx context.Context, req movement.Request) (*movement.Result, error)
}

// Manager owns the caution lifecycle.
type Manager struct {
	store    Store
	tontines tontine.Store
	mover    Mover
	wallets  ledger.Store
	gw       gateway.Gateway
	clock    func() time.Time
	logger   *slog.Logger
}

// NewManager creates a caution manager. gw may be nil to disable the
// card fallback.
func NewManager(store Store, tontines tontine.Store, mover Mover, wallets ledger.Store, gw gateway.Gateway) *Manager {
	return &Manager{
		store:    store,
		tontines: tontines,
		mover:    mover,
		wallets:  wallets,
		gw:       gw,
		clock:    time.Now,
		logger:   slog.Default().With("component", "caution"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Bloquer posts the deposit for (userID, fundID). Policy: debit the
// wallet when it covers the amount, otherwise fall back to an
// off-session card charge. All-or-nothing: a failed charge leaves no
// caution row and no balance change.
func (m *Manager) Bloquer(ctx context.Context, userID, fundID string, amount finance.Money) (*Caution, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: caution amount must be positive", movement.ErrValidation)
	}
	if _, err := m.store.GetActive(ctx, userID, fundID); err == nil {
		return nil, ErrActiveExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	c := &Caution{
		ID:          uuid.New().String(),
		UserID:      userID,
		FundID:      fundID,
		AmountMinor: amount.AmountMinor,
		Currency:    amount.Currency,
		Status:      StatusBlocked,
		CreatedAt:   m.clock(),
	}

	method, undo, err := m.collect(ctx, userID, fundID, amount, c.ID)
	if err != nil {
		return nil, err
	}
	c.Method = method

	if err := m.store.Insert(ctx, c); err != nil {
		// Don't keep the member's money without a caution row.
		if undo != nil {
			if undoErr := undo(ctx); undoErr != nil {
				m.logger.ErrorContext(ctx, "undo of caution collection failed",
					"caution_id", c.ID, "error", undoErr)
			}
		}
		return nil, fmt.Errorf("persist caution: %w", err)
	}

	m.logger.InfoContext(ctx, "caution blocked",
		"user_id", userID, "fund_id", fundID, "amount", amount.String(), "method", method)
	return c, nil
}

// collect takes the deposit from the wallet or the card. It returns the
// method used and an undo func for the wallet path.
func (m *Manager) collect(ctx context.Context, userID, fundID string, amount finance.Money, cautionID string) (string, func(context.Context) error, error) {
	wallet, err := m.walletBalance(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	if wallet >= amount.AmountMinor {
		_, err := m.mover.Move(ctx, movement.Request{
			FromUserID:     userID,
			Amount:         amount,
			Kind:           ledger.KindCautionBlock,
			IdempotencyKey: "caution-block:" + cautionID,
			Meta:           movement.Metadata{FundID: fundID, Description: "security deposit"},
		})
		if err != nil {
			return "", nil, err
		}
		undo := func(undoCtx context.Context) error {
			_, undoErr := m.mover.Move(undoCtx, movement.Request{
				ToUserID:       userID,
				Amount:         amount,
				Kind:           ledger.KindCautionRestore,
				IdempotencyKey: "caution-block-undo:" + cautionID,
				Meta:           movement.Metadata{FundID: fundID, Description: "security deposit reversal"},
			})
			return undoErr
		}
		return string(tontine.MethodWallet), undo, nil
	}

	// Wallet is short: charge the saved card instead.
	if m.gw == nil {
		return "", nil, fmt.Errorf("%w: balance %d below caution", movement.ErrInsufficientFunds, wallet)
	}
	profile, err := m.tontines.GetPaymentProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, tontine.ErrNoPaymentProfile) {
			return "", nil, fmt.Errorf("%w: balance %d below caution and no card on file", movement.ErrInsufficientFunds, wallet)
		}
		return "", nil, err
	}
	charge, err := m.gw.CreateOffSessionCharge(ctx, profile.CustomerRef, profile.MethodRef, amount, gateway.ChargeMetadata{
		UserID: userID, FundID: fundID, Purpose: "caution",
	})
	if err != nil {
		return "", nil, err
	}
	if charge.Status != gateway.ChargeSucceeded {
		return "", nil, fmt.Errorf("%w: caution charge %s %s", gateway.ErrGateway, charge.ID, charge.Status)
	}
	return string(tontine.MethodCard), nil, nil
}

// walletBalance only picks the collection path; the movement engine
// re-checks the balance under its compare-and-swap.
func (m *Manager) walletBalance(ctx context.Context, userID string) (int64, error) {
	w, err := m.wallets.GetWalletByUser(ctx, userID)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.BalanceMinor, nil
}

// Restituer refunds a blocked caution to the member's wallet. Requested
// unconditionally at fund completion, so a member who never posted one
// is a no-op, not an error.
func (m *Manager) Restituer(ctx context.Context, userID, fundID string) (*Caution, error) {
	c, err := m.store.GetActive(ctx, userID, fundID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = m.mover.Move(ctx, movement.Request{
		ToUserID:       userID,
		Amount:         finance.New(c.AmountMinor, c.Currency),
		Kind:           ledger.KindCautionRestore,
		IdempotencyKey: "caution-restore:" + c.ID,
		Meta:           movement.Metadata{FundID: fundID, Description: "security deposit restitution"},
	})
	if err != nil {
		return nil, fmt.Errorf("restitute caution %s: %w", c.ID, err)
	}

	now := m.clock()
	if err := m.store.Resolve(ctx, c.ID, StatusRestituted, "", now); err != nil {
		return nil, err
	}
	c.Status = StatusRestituted
	c.ResolvedAt = &now

	m.logger.InfoContext(ctx, "caution restituted", "user_id", userID, "fund_id", fundID)
	return c, nil
}

// Saisir seizes a blocked caution into the fund pot. Idempotent per
// (member, fund): with no blocked caution it is a no-op.
func (m *Manager) Saisir(ctx context.Context, userID, fundID, reason string) (*Caution, error) {
	c, err := m.store.GetActive(ctx, userID, fundID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fund, err := m.tontines.GetFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("resolve fund: %w", err)
	}

	// The deposit left the member's wallet at block time; seizure
	// surfaces it in the pot's ledger.
	_, err = m.mover.Move(ctx, movement.Request{
		ToUserID:       fund.PotUserID,
		Amount:         finance.New(c.AmountMinor, c.Currency),
		Kind:           ledger.KindCautionSeize,
		IdempotencyKey: "caution-seize:" + c.ID,
		Meta:           movement.Metadata{FundID: fundID, Description: reason},
	})
	if err != nil {
		return nil, fmt.Errorf("seize caution %s: %w", c.ID, err)
	}

	now := m.clock()
	if err := m.store.Resolve(ctx, c.ID, StatusSeized, reason, now); err != nil {
		return nil, err
	}
	c.Status = StatusSeized
	c.Reason = reason
	c.ResolvedAt = &now

	m.logger.InfoContext(ctx, "caution seized", "user_id", userID, "fund_id", fundID, "reason", reason)
	return c, nil
}
