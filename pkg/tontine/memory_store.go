package tontine

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Thread-safe via RWMutex.
type MemoryStore struct {
	mu           sync.RWMutex
	funds        map[string]*Fund
	memberships  map[string]*Membership // key userID|fundID
	cycles       map[string]*Cycle
	payments     map[string]*ContributionPayment
	defaillances []*Defaillance
	profiles     map[string]*PaymentProfile
	clock        func() time.Time
}

// NewMemoryStore creates an empty in-memory tontine store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		funds:       make(map[string]*Fund),
		memberships: make(map[string]*Membership),
		cycles:      make(map[string]*Cycle),
		payments:    make(map[string]*ContributionPayment),
		profiles:    make(map[string]*PaymentProfile),
		clock:       time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func memberKey(userID, fundID string) string { return userID + "|" + fundID }

func (s *MemoryStore) CreateFund(ctx context.Context, f *Fund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *f
	if val.CreatedAt.IsZero() {
		val.CreatedAt = s.clock()
	}
	s.funds[val.ID] = &val
	return nil
}

func (s *MemoryStore) GetFund(ctx context.Context, fundID string) (*Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.funds[fundID]
	if !ok {
		return nil, ErrFundNotFound
	}
	val := *f
	return &val, nil
}

func (s *MemoryStore) CreateMembership(ctx context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *m
	if val.JoinedAt.IsZero() {
		val.JoinedAt = s.clock()
	}
	s.memberships[memberKey(val.UserID, val.FundID)] = &val
	return nil
}

func (s *MemoryStore) GetMembership(ctx context.Context, userID, fundID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[memberKey(userID, fundID)]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	val := *m
	return &val, nil
}

func (s *MemoryStore) SetMembershipStatus(ctx context.Context, userID, fundID string, status MembershipStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[memberKey(userID, fundID)]
	if !ok {
		return ErrMembershipNotFound
	}
	m.Status = status
	return nil
}

func (s *MemoryStore) ListActiveMembers(ctx context.Context, fundID string) ([]*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Membership
	for _, m := range s.memberships {
		if m.FundID == fundID && m.Status != MemberExcluded {
			val := *m
			out = append(out, &val)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) CreateCycle(ctx context.Context, c *Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *c
	s.cycles[val.ID] = &val
	return nil
}

func (s *MemoryStore) GetCycle(ctx context.Context, cycleID string) (*Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cycles[cycleID]
	if !ok {
		return nil, ErrCycleNotFound
	}
	val := *c
	return &val, nil
}

func (s *MemoryStore) ListOpenCycles(ctx context.Context) ([]*Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Cycle
	for _, c := range s.cycles {
		if c.Status == CycleOpen {
			val := *c
			out = append(out, &val)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *MemoryStore) SetCycleStatus(ctx context.Context, cycleID string, status CycleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[cycleID]
	if !ok {
		return ErrCycleNotFound
	}
	c.Status = status
	return nil
}

func (s *MemoryStore) RecordPayment(ctx context.Context, p *ContributionPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == PaymentConfirmed {
		for _, existing := range s.payments {
			if existing.CycleID == p.CycleID && existing.UserID == p.UserID && existing.Status == PaymentConfirmed {
				return ErrDuplicatePayment
			}
		}
	}
	val := *p
	if val.PaidAt.IsZero() {
		val.PaidAt = s.clock()
	}
	s.payments[val.ID] = &val
	return nil
}

func (s *MemoryStore) GetConfirmedPayment(ctx context.Context, cycleID, userID string) (*ContributionPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.CycleID == cycleID && p.UserID == userID && p.Status == PaymentConfirmed {
			val := *p
			return &val, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListPaymentsByUser(ctx context.Context, userID string) ([]*ContributionPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ContributionPayment
	for _, p := range s.payments {
		if p.UserID == userID {
			val := *p
			out = append(out, &val)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
	return out, nil
}

func (s *MemoryStore) CreateDefaillance(ctx context.Context, d *Defaillance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *d
	if val.CreatedAt.IsZero() {
		val.CreatedAt = s.clock()
	}
	s.defaillances = append(s.defaillances, &val)
	return nil
}

func (s *MemoryStore) CountDefaillances(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.defaillances {
		if d.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SavePaymentProfile(ctx context.Context, p *PaymentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *p
	s.profiles[val.UserID] = &val
	return nil
}

func (s *MemoryStore) GetPaymentProfile(ctx context.Context, userID string) (*PaymentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNoPaymentProfile
	}
	val := *p
	return &val, nil
}
