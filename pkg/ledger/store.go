package ledger

import "context"

// Store handles persistence of wallets, transactions and transfers.
// Implementations: MemoryStore for tests, PostgresStore for production.
type Store interface {
	// GetWallet returns a wallet by id.
	GetWallet(ctx context.Context, walletID string) (*Wallet, error)

	// GetWalletByUser returns the wallet owned by userID, or
	// ErrWalletNotFound if the user has never moved money.
	GetWalletByUser(ctx context.Context, userID string) (*Wallet, error)

	// CreateWallet inserts a new zero-balance wallet.
	CreateWallet(ctx context.Context, w *Wallet) error

	// CompareAndSwapBalance updates the wallet balance only if the stored
	// value still equals oldBalance. Returns ErrStaleBalance when another
	// writer got there first; the caller re-reads and retries.
	CompareAndSwapBalance(ctx context.Context, walletID string, oldBalance, newBalance int64) error

	// InsertTransaction appends a transaction. A non-empty Reference that
	// already exists yields ErrDuplicateReference.
	InsertTransaction(ctx context.Context, tx *Transaction) error

	// GetTransaction returns a transaction by id.
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// GetTransactionByReference looks a transaction up by idempotency
	// reference. ErrTransactionNotFound when absent.
	GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error)

	// SetTransactionStatus transitions pending -> confirmed/failed.
	SetTransactionStatus(ctx context.Context, txID string, status TransactionStatus) error

	// InsertTransfer records the pairing of two transaction legs.
	InsertTransfer(ctx context.Context, t *Transfer) error

	// ListTransactionsByUser returns the user's movements, newest first.
	ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}
