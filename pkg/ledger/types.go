// Package ledger is the source of truth for wallet balances.
//
// Wallets are created lazily on first movement and never deleted.
// Transactions are append-only: status may move pending -> confirmed or
// pending -> failed, but amounts and balance snapshots never change after
// insert. Balances are only mutated through a compare-and-swap on the
// stored value, so concurrent movements either serialize or retry.
package ledger

import (
	"errors"
	"time"
)

// TransactionKind categorizes a ledger movement.
type TransactionKind string

const (
	KindDeposit        TransactionKind = "deposit"
	KindWithdrawal     TransactionKind = "withdrawal"
	KindTransferIn     TransactionKind = "transfer_in"
	KindTransferOut    TransactionKind = "transfer_out"
	KindContribution   TransactionKind = "contribution"
	KindPotReceived    TransactionKind = "pot_received"
	KindPenalty        TransactionKind = "penalty"
	KindCautionBlock   TransactionKind = "caution_block"
	KindCautionSeize   TransactionKind = "caution_seize"
	KindCautionRestore TransactionKind = "caution_restore"
	KindFee            TransactionKind = "fee"
)

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusFailed    TransactionStatus = "failed"
)

// Store-level errors. Callers match with errors.Is.
var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrStaleBalance        = errors.New("stale balance: concurrent update")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
)

// Wallet holds a user's balance. The balance column doubles as the
// optimistic-lock compare value.
type Wallet struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	BalanceMinor int64     `json:"balance_minor"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transaction is an immutable append-only movement record with balance
// snapshots taken atomically with the balance update.
type Transaction struct {
	ID            string            `json:"id"`
	WalletID      string            `json:"wallet_id"`
	UserID        string            `json:"user_id"`
	Kind          TransactionKind   `json:"kind"`
	AmountMinor   int64             `json:"amount_minor"`
	Currency      string            `json:"currency"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Status        TransactionStatus `json:"status"`
	// Reference is the idempotency key, typically a gateway payment id.
	Reference   string     `json:"reference,omitempty"`
	FundID      string     `json:"fund_id,omitempty"`
	CycleID     string     `json:"cycle_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Transfer pairs the sender and recipient legs of a two-leg movement.
// Denormalized for history display; balances are owned by the legs.
type Transfer struct {
	ID              string    `json:"id"`
	SenderTxID      string    `json:"sender_tx_id"`
	RecipientTxID   string    `json:"recipient_tx_id"`
	SenderUserID    string    `json:"sender_user_id"`
	RecipientUserID string    `json:"recipient_user_id"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
}
