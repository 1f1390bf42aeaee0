package penalty

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Thread-safe via RWMutex.
type MemoryStore struct {
	mu        sync.RWMutex
	penalties map[string]*Penalty
	byPair    map[string]string // userID|cycleID -> penaltyID
	clock     func() time.Time
}

// NewMemoryStore creates an empty in-memory penalty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		penalties: make(map[string]*Penalty),
		byPair:    make(map[string]string),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func pairKey(userID, cycleID string) string { return userID + "|" + cycleID }

func (s *MemoryStore) Insert(ctx context.Context, p *Penalty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(p.UserID, p.CycleID)
	if _, exists := s.byPair[key]; exists {
		return ErrDuplicate
	}
	val := *p
	if val.CreatedAt.IsZero() {
		val.CreatedAt = s.clock()
	}
	s.penalties[val.ID] = &val
	s.byPair[key] = val.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, penaltyID string) (*Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.penalties[penaltyID]
	if !ok {
		return nil, ErrNotFound
	}
	val := *p
	return &val, nil
}

func (s *MemoryStore) GetByUserCycle(ctx context.Context, userID, cycleID string) (*Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey(userID, cycleID)]
	if !ok {
		return nil, ErrNotFound
	}
	val := *s.penalties[id]
	return &val, nil
}

func (s *MemoryStore) ListUnpaidByUser(ctx context.Context, userID string) ([]*Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Penalty
	for _, p := range s.penalties {
		if p.UserID == userID && p.Status == StatusApplied {
			val := *p
			out = append(out, &val)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetPaid(ctx context.Context, penaltyID string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.penalties[penaltyID]
	if !ok {
		return ErrNotFound
	}
	p.Status = StatusPaid
	p.PaidAt = &paidAt
	return nil
}
