// Package caution manages the refundable security deposit a member
// posts to join a fund: blocked on join, restituted at fund completion,
// seized on default.
//
// Lifecycle: none -> blocked -> restituted | seized (terminal). At most
// one caution per (member, fund) is ever blocked at a time.
package caution

import (
	"context"
	"errors"
	"time"
)

// Status of a caution.
type Status string

const (
	StatusBlocked    Status = "blocked"
	StatusRestituted Status = "restituted"
	StatusSeized     Status = "seized"
)

var (
	ErrActiveExists = errors.New("an active caution already exists for this membership")
	ErrNotFound     = errors.New("caution not found")
)

// Caution is one security deposit.
type Caution struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	FundID      string     `json:"fund_id"`
	AmountMinor int64      `json:"amount_minor"`
	Currency    string     `json:"currency"`
	Status      Status     `json:"status"`
	Method      string     `json:"method"` // wallet or card
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Store handles persistence of cautions.
type Store interface {
	// Insert adds a caution. ErrActiveExists when a blocked caution
	// already exists for the same (user, fund).
	Insert(ctx context.Context, c *Caution) error
	// GetActive returns the blocked caution for (user, fund), or
	// ErrNotFound when none is active.
	GetActive(ctx context.Context, userID, fundID string) (*Caution, error)
	// Resolve moves a caution to a terminal status.
	Resolve(ctx context.Context, cautionID string, status Status, reason string, resolvedAt time.Time) error
}
