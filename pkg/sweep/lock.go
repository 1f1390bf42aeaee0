package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DayLock guards against a doubled scheduler invocation: at most one
// sweep run per calendar day acquires it.
type DayLock interface {
	// Acquire returns true when this caller holds the lock for day.
	Acquire(ctx context.Context, day string) (bool, error)
}

// RedisDayLock takes the lock with SET NX so concurrent processes agree
// on a single holder. The TTL self-cleans stale keys.
type RedisDayLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDayLock(client *redis.Client) *RedisDayLock {
	return &RedisDayLock{client: client, ttl: 48 * time.Hour}
}

func (l *RedisDayLock) Acquire(ctx context.Context, day string) (bool, error) {
	key := fmt.Sprintf("sweep:lock:%s", day)
	ok, err := l.client.SetNX(ctx, key, "held", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis day lock: %w", err)
	}
	return ok, nil
}

// MemoryDayLock is the single-process fallback when Redis is not
// configured.
type MemoryDayLock struct {
	mu   sync.Mutex
	days map[string]bool
}

func NewMemoryDayLock() *MemoryDayLock {
	return &MemoryDayLock{days: make(map[string]bool)}
}

func (l *MemoryDayLock) Acquire(ctx context.Context, day string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.days[day] {
		return false, nil
	}
	l.days[day] = true
	return true, nil
}
