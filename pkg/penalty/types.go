// Package penalty applies and settles late-contribution penalties.
//
// Applying a penalty tracks the debt only; no money moves until the
// member settles voluntarily or their caution is seized. At most one
// penalty exists per (user, cycle) no matter how many times the sweep
// re-processes a day.
package penalty

import (
	"context"
	"errors"
	"time"
)

// Status of a penalty.
type Status string

const (
	StatusApplied Status = "applied" // unpaid debt
	StatusPaid    Status = "paid"
)

var (
	ErrNotFound  = errors.New("penalty not found")
	ErrDuplicate = errors.New("penalty already applied for this cycle")
)

// Penalty is a late-fee debt attached to a member and a cycle.
type Penalty struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	FundID      string     `json:"fund_id"`
	CycleID     string     `json:"cycle_id"`
	AmountMinor int64      `json:"amount_minor"`
	Currency    string     `json:"currency"`
	Reason      string     `json:"reason"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// Store handles persistence of penalties.
type Store interface {
	// Insert adds a penalty. ErrDuplicate when one already exists for
	// the same (user, cycle).
	Insert(ctx context.Context, p *Penalty) error
	Get(ctx context.Context, penaltyID string) (*Penalty, error)
	// GetByUserCycle returns the penalty for (userID, cycleID), or
	// ErrNotFound.
	GetByUserCycle(ctx context.Context, userID, cycleID string) (*Penalty, error)
	// ListUnpaidByUser returns the user's penalties still in applied
	// status; the eligibility gate consumes this.
	ListUnpaidByUser(ctx context.Context, userID string) ([]*Penalty, error)
	SetPaid(ctx context.Context, penaltyID string, paidAt time.Time) error
}
