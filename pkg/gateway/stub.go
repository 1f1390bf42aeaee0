package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
)

// Stub implements Gateway in memory for tests and local development.
// Outcomes are scripted per customer reference; unscripted customers
// succeed.
type Stub struct {
	mu       sync.Mutex
	failFor  map[string]error
	declined map[string]bool
	Charges  []StubCharge
	Payouts  []StubPayout
	accounts map[string]*Account
}

// StubCharge records one charge attempt for assertions.
type StubCharge struct {
	CustomerRef string
	MethodRef   string
	Amount      finance.Money
	Meta        ChargeMetadata
	Result      ChargeStatus
}

// StubPayout records one payout for assertions.
type StubPayout struct {
	Destination string
	Amount      finance.Money
}

// NewStub creates a stub gateway where every charge succeeds.
func NewStub() *Stub {
	return &Stub{
		failFor:  make(map[string]error),
		declined: make(map[string]bool),
		accounts: make(map[string]*Account),
	}
}

// FailWith makes charges for customerRef return err (transport-level).
func (s *Stub) FailWith(customerRef string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFor[customerRef] = err
}

// Decline makes charges for customerRef come back failed (card declined).
func (s *Stub) Decline(customerRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declined[customerRef] = true
}

// SetAccount registers an account for RetrieveAccount.
func (s *Stub) SetAccount(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *Stub) CreateOffSessionCharge(ctx context.Context, customerRef, methodRef string, amount finance.Money, meta ChargeMetadata) (*Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failFor[customerRef]; ok {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	status := ChargeSucceeded
	if s.declined[customerRef] {
		status = ChargeFailed
	}
	s.Charges = append(s.Charges, StubCharge{
		CustomerRef: customerRef, MethodRef: methodRef, Amount: amount, Meta: meta, Result: status,
	})
	return &Charge{ID: "ch_" + uuid.New().String()[:8], Status: status}, nil
}

func (s *Stub) CreateTransfer(ctx context.Context, destinationAccount string, amount finance.Money) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Payouts = append(s.Payouts, StubPayout{Destination: destinationAccount, Amount: amount})
	return &Payout{ID: "po_" + uuid.New().String()[:8], Status: "paid"}, nil
}

func (s *Stub) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s not found", ErrGateway, accountID)
	}
	val := *a
	return &val, nil
}

// ChargeCount returns the number of charge attempts recorded.
func (s *Stub) ChargeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Charges)
}
