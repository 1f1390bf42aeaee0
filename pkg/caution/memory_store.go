package caution

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Thread-safe via RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	cautions map[string]*Caution
	clock    func() time.Time
}

// NewMemoryStore creates an empty in-memory caution store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cautions: make(map[string]*Caution),
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) Insert(ctx context.Context, c *Caution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cautions {
		if existing.UserID == c.UserID && existing.FundID == c.FundID && existing.Status == StatusBlocked {
			return ErrActiveExists
		}
	}
	val := *c
	if val.CreatedAt.IsZero() {
		val.CreatedAt = s.clock()
	}
	s.cautions[val.ID] = &val
	return nil
}

func (s *MemoryStore) GetActive(ctx context.Context, userID, fundID string) (*Caution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cautions {
		if c.UserID == userID && c.FundID == fundID && c.Status == StatusBlocked {
			val := *c
			return &val, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Resolve(ctx context.Context, cautionID string, status Status, reason string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cautions[cautionID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	if reason != "" {
		c.Reason = reason
	}
	c.ResolvedAt = &resolvedAt
	return nil
}

// Get returns any caution by id, for tests.
func (s *MemoryStore) Get(cautionID string) (*Caution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cautions[cautionID]
	if !ok {
		return nil, false
	}
	val := *c
	return &val, true
}
