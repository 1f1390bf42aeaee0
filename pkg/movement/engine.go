// Package movement implements money movement over the wallet ledger.
//
// Every balance change in the system goes through Engine.Move: paired
// debit/credit legs with before/after snapshots, idempotency on an
// external reference key, and compare-and-swap balance updates retried
// on conflict.
package movement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
)

// Movement errors. Callers match with errors.Is.
var (
	ErrValidation        = errors.New("invalid movement request")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// defaultMaxRetries bounds the CAS retry loop per leg.
const defaultMaxRetries = 5

// Metadata carries closed, typed correlation data through a movement.
type Metadata struct {
	FundID      string `json:"fund_id,omitempty"`
	CycleID     string `json:"cycle_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Request describes one movement. Exactly one of FromUserID/ToUserID may
// be empty: empty From is a pure credit (deposit, restitution), empty To
// is a pure debit (withdrawal, caution block).
type Request struct {
	FromUserID     string
	ToUserID       string
	Amount         finance.Money
	Kind           ledger.TransactionKind
	IdempotencyKey string
	Meta           Metadata
}

// Result reports the transactions written by a movement.
type Result struct {
	Debit    *ledger.Transaction
	Credit   *ledger.Transaction
	Transfer *ledger.Transfer
	// Replayed is true when the idempotency key had been seen before and
	// no balance was touched by this call.
	Replayed bool
}

// Engine performs movements against a ledger store.
type Engine struct {
	store      ledger.Store
	clock      func() time.Time
	logger     *slog.Logger
	maxRetries int
}

// NewEngine creates a movement engine.
func NewEngine(store ledger.Store) *Engine {
	return &Engine{
		store:      store,
		clock:      time.Now,
		logger:     slog.Default().With("component", "movement"),
		maxRetries: defaultMaxRetries,
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Move applies the requested movement. It is safe to call concurrently
// for the same wallet; conflicting balance updates retry.
func (e *Engine) Move(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Idempotency: a previously-seen key returns the original outcome
	// without re-mutating any balance.
	if req.IdempotencyKey != "" {
		if prior, err := e.store.GetTransactionByReference(ctx, req.IdempotencyKey); err == nil {
			return &Result{Debit: priorIfDebit(prior), Credit: priorIfCredit(prior), Replayed: true}, nil
		} else if !errors.Is(err, ledger.ErrTransactionNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	res := &Result{}

	var debitTx *ledger.Transaction
	if req.FromUserID != "" {
		tx, err := e.applyLeg(ctx, req.FromUserID, -req.Amount.AmountMinor, legKind(req.Kind, true), req)
		if err != nil {
			return nil, err
		}
		debitTx = tx
		res.Debit = tx
	}

	if req.ToUserID != "" {
		kind := legKind(req.Kind, false)
		tx, err := e.applyLeg(ctx, req.ToUserID, req.Amount.AmountMinor, kind, req)
		if err != nil {
			// Never leave a single-leg mutation persisted: undo the
			// debit before surfacing the credit failure.
			if debitTx != nil {
				if rbErr := e.rollbackLeg(ctx, debitTx); rbErr != nil {
					e.logger.ErrorContext(ctx, "rollback of debit leg failed",
						"tx_id", debitTx.ID, "error", rbErr)
				}
			}
			return nil, err
		}
		res.Credit = tx
	}

	if res.Debit != nil && res.Credit != nil {
		transfer := &ledger.Transfer{
			ID:              uuid.New().String(),
			SenderTxID:      res.Debit.ID,
			RecipientTxID:   res.Credit.ID,
			SenderUserID:    req.FromUserID,
			RecipientUserID: req.ToUserID,
			AmountMinor:     req.Amount.AmountMinor,
			Currency:        req.Amount.Currency,
			CreatedAt:       e.clock(),
		}
		if err := e.store.InsertTransfer(ctx, transfer); err != nil {
			e.logger.ErrorContext(ctx, "transfer record insert failed", "error", err)
		} else {
			res.Transfer = transfer
		}
	}

	return res, nil
}

func validate(req Request) error {
	if req.FromUserID == "" && req.ToUserID == "" {
		return fmt.Errorf("%w: neither sender nor recipient given", ErrValidation)
	}
	if req.FromUserID != "" && req.FromUserID == req.ToUserID {
		return fmt.Errorf("%w: sender and recipient are the same user", ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, req.Amount)
	}
	if req.Amount.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrValidation)
	}
	if req.Kind == "" {
		return fmt.Errorf("%w: missing transaction kind", ErrValidation)
	}
	return nil
}

// legKind maps the request kind onto a per-leg kind. Generic transfers
// split into transfer_out/transfer_in; every other kind is recorded
// unchanged on both legs.
func legKind(kind ledger.TransactionKind, debit bool) ledger.TransactionKind {
	if kind == ledger.KindTransferIn || kind == ledger.KindTransferOut {
		if debit {
			return ledger.KindTransferOut
		}
		return ledger.KindTransferIn
	}
	return kind
}

// applyLeg performs one read-modify-write against a wallet. delta is
// negative for a debit. Retries on CAS conflict up to maxRetries.
func (e *Engine) applyLeg(ctx context.Context, userID string, delta int64, kind ledger.TransactionKind, req Request) (*ledger.Transaction, error) {
	wallet, err := e.walletFor(ctx, userID, req.Amount.Currency)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		before := wallet.BalanceMinor
		after := before + delta
		if after < 0 {
			return nil, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, before, -delta)
		}

		err := e.store.CompareAndSwapBalance(ctx, wallet.ID, before, after)
		if err == nil {
			return e.recordLeg(ctx, wallet, delta, before, after, kind, req)
		}
		if !errors.Is(err, ledger.ErrStaleBalance) {
			return nil, fmt.Errorf("balance update: %w", err)
		}
		if attempt+1 >= e.maxRetries {
			return nil, fmt.Errorf("balance update for wallet %s: %w", wallet.ID, ledger.ErrStaleBalance)
		}
		// Someone raced us; re-read and try again.
		wallet, err = e.store.GetWallet(ctx, wallet.ID)
		if err != nil {
			return nil, fmt.Errorf("re-read wallet: %w", err)
		}
	}
}

func (e *Engine) recordLeg(ctx context.Context, wallet *ledger.Wallet, delta, before, after int64, kind ledger.TransactionKind, req Request) (*ledger.Transaction, error) {
	now := e.clock()
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	tx := &ledger.Transaction{
		ID:            uuid.New().String(),
		WalletID:      wallet.ID,
		UserID:        wallet.UserID,
		Kind:          kind,
		AmountMinor:   amount,
		Currency:      req.Amount.Currency,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        ledger.StatusConfirmed,
		Reference:     referenceFor(req, delta),
		FundID:        req.Meta.FundID,
		CycleID:       req.Meta.CycleID,
		CreatedAt:     now,
		ConfirmedAt:   &now,
	}
	if err := e.store.InsertTransaction(ctx, tx); err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			// A concurrent call with the same key won the insert race.
			// Undo our balance change and return the winner's outcome.
			if casErr := e.compensate(ctx, wallet.ID, -delta); casErr != nil {
				e.logger.ErrorContext(ctx, "compensation after duplicate reference failed",
					"wallet_id", wallet.ID, "error", casErr)
			}
			prior, lookupErr := e.store.GetTransactionByReference(ctx, tx.Reference)
			if lookupErr != nil {
				return nil, fmt.Errorf("duplicate reference yet lookup failed: %w", lookupErr)
			}
			return prior, nil
		}
		// The balance moved but the record failed: put the money back.
		if casErr := e.compensate(ctx, wallet.ID, -delta); casErr != nil {
			e.logger.ErrorContext(ctx, "compensation after insert failure failed",
				"wallet_id", wallet.ID, "error", casErr)
		}
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	return tx, nil
}

// referenceFor derives the per-leg idempotency reference. Two-leg
// movements suffix the credit leg so both legs fit the unique index.
func referenceFor(req Request, delta int64) string {
	if req.IdempotencyKey == "" {
		return ""
	}
	if req.FromUserID != "" && req.ToUserID != "" && delta > 0 {
		return req.IdempotencyKey + ":credit"
	}
	return req.IdempotencyKey
}

// rollbackLeg compensates a persisted leg and marks its record failed.
func (e *Engine) rollbackLeg(ctx context.Context, tx *ledger.Transaction) error {
	// A debit leg gets the money back; a credit leg gives it up.
	delta := tx.AmountMinor
	if tx.BalanceAfter > tx.BalanceBefore {
		delta = -tx.AmountMinor
	}
	if err := e.compensate(ctx, tx.WalletID, delta); err != nil {
		return err
	}
	return e.store.SetTransactionStatus(ctx, tx.ID, ledger.StatusFailed)
}

// compensate adjusts a wallet balance by delta with its own CAS loop.
func (e *Engine) compensate(ctx context.Context, walletID string, delta int64) error {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		wallet, err := e.store.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}
		err = e.store.CompareAndSwapBalance(ctx, walletID, wallet.BalanceMinor, wallet.BalanceMinor+delta)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ledger.ErrStaleBalance) {
			return err
		}
	}
	return ledger.ErrStaleBalance
}

// walletFor returns the user's wallet, creating it lazily on first touch.
func (e *Engine) walletFor(ctx context.Context, userID, currency string) (*ledger.Wallet, error) {
	wallet, err := e.store.GetWalletByUser(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ledger.ErrWalletNotFound) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	wallet = &ledger.Wallet{
		ID:       uuid.New().String(),
		UserID:   userID,
		Currency: currency,
	}
	if err := e.store.CreateWallet(ctx, wallet); err != nil {
		// A concurrent first movement may have created it already.
		if existing, getErr := e.store.GetWalletByUser(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	e.logger.DebugContext(ctx, "wallet created lazily", "user_id", userID)
	return wallet, nil
}

func priorIfDebit(tx *ledger.Transaction) *ledger.Transaction {
	if tx.BalanceAfter < tx.BalanceBefore {
		return tx
	}
	return nil
}

func priorIfCredit(tx *ledger.Transaction) *ledger.Transaction {
	if tx.BalanceAfter >= tx.BalanceBefore {
		return tx
	}
	return nil
}
