package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Thread-safe via RWMutex.
type MemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]*Wallet
	byUser       map[string]string // userID -> walletID
	transactions map[string]*Transaction
	byReference  map[string]string // reference -> txID
	transfers    map[string]*Transfer
	clock        func() time.Time
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*Wallet),
		byUser:       make(map[string]string),
		transactions: make(map[string]*Transaction),
		byReference:  make(map[string]string),
		transfers:    make(map[string]*Transfer),
		clock:        time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	val := *w
	return &val, nil
}

func (s *MemoryStore) GetWalletByUser(ctx context.Context, userID string) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	val := *s.wallets[id]
	return &val, nil
}

func (s *MemoryStore) CreateWallet(ctx context.Context, w *Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	val := *w
	if val.CreatedAt.IsZero() {
		val.CreatedAt = now
	}
	val.UpdatedAt = now
	s.wallets[val.ID] = &val
	s.byUser[val.UserID] = val.ID
	return nil
}

func (s *MemoryStore) CompareAndSwapBalance(ctx context.Context, walletID string, oldBalance, newBalance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	if w.BalanceMinor != oldBalance {
		return ErrStaleBalance
	}
	w.BalanceMinor = newBalance
	w.UpdatedAt = s.clock()
	return nil
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.Reference != "" {
		if _, exists := s.byReference[tx.Reference]; exists {
			return ErrDuplicateReference
		}
	}
	val := *tx
	if val.CreatedAt.IsZero() {
		val.CreatedAt = s.clock()
	}
	s.transactions[val.ID] = &val
	if val.Reference != "" {
		s.byReference[val.Reference] = val.ID
	}
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	val := *tx
	return &val, nil
}

func (s *MemoryStore) GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReference[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	val := *s.transactions[id]
	return &val, nil
}

func (s *MemoryStore) SetTransactionStatus(ctx context.Context, txID string, status TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.Status = status
	if status == StatusConfirmed {
		now := s.clock()
		tx.ConfirmedAt = &now
	}
	return nil
}

func (s *MemoryStore) InsertTransfer(ctx context.Context, t *Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *t
	if val.CreatedAt.IsZero() {
		val.CreatedAt = s.clock()
	}
	s.transfers[val.ID] = &val
	return nil
}

func (s *MemoryStore) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			val := *tx
			out = append(out, &val)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TotalBalance sums every wallet balance. Used by conservation checks.
func (s *MemoryStore) TotalBalance() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, w := range s.wallets {
		total += w.BalanceMinor
	}
	return total
}
