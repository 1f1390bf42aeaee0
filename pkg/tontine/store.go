package tontine

import (
	"context"
	"time"
)

// Store handles persistence of the rotating-fund domain.
type Store interface {
	CreateFund(ctx context.Context, f *Fund) error
	GetFund(ctx context.Context, fundID string) (*Fund, error)

	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, userID, fundID string) (*Membership, error)
	SetMembershipStatus(ctx context.Context, userID, fundID string, status MembershipStatus) error
	// ListActiveMembers returns memberships in active or suspended
	// standing for a fund; excluded members are gone for good.
	ListActiveMembers(ctx context.Context, fundID string) ([]*Membership, error)

	CreateCycle(ctx context.Context, c *Cycle) error
	GetCycle(ctx context.Context, cycleID string) (*Cycle, error)
	ListOpenCycles(ctx context.Context) ([]*Cycle, error)
	SetCycleStatus(ctx context.Context, cycleID string, status CycleStatus) error

	// RecordPayment inserts a contribution payment. A second confirmed
	// payment for the same (cycle, user) yields ErrDuplicatePayment.
	RecordPayment(ctx context.Context, p *ContributionPayment) error
	// GetConfirmedPayment returns the confirmed payment of userID for
	// cycleID, or nil when the member has not paid yet.
	GetConfirmedPayment(ctx context.Context, cycleID, userID string) (*ContributionPayment, error)
	// ListPaymentsByUser returns all of a user's contribution payments,
	// the scorer's raw material.
	ListPaymentsByUser(ctx context.Context, userID string) ([]*ContributionPayment, error)

	CreateDefaillance(ctx context.Context, d *Defaillance) error
	CountDefaillances(ctx context.Context, userID string) (int, error)

	SavePaymentProfile(ctx context.Context, p *PaymentProfile) error
	GetPaymentProfile(ctx context.Context, userID string) (*PaymentProfile, error)
}

// DaysUntilDue computes the whole-day offset between now and the cycle
// due date, both truncated to calendar days in UTC. Negative means
// overdue.
func DaysUntilDue(dueDate, now time.Time) int {
	due := dueDate.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	return int(due.Sub(today) / (24 * time.Hour))
}
