// Package tontine holds the rotating-fund domain: funds, memberships,
// contribution cycles ("tours"), contribution payments and defaillance
// records. The collection sweep owns membership and cycle status
// transitions; nothing else mutates them.
package tontine

import (
	"errors"
	"time"
)

// MembershipStatus is the standing of a member within a fund.
type MembershipStatus string

const (
	MemberActive    MembershipStatus = "active"
	MemberSuspended MembershipStatus = "suspended"
	MemberExcluded  MembershipStatus = "excluded"
)

// CycleStatus is the lifecycle state of one payout round.
type CycleStatus string

const (
	CycleScheduled CycleStatus = "scheduled"
	CycleOpen      CycleStatus = "open"
	CycleComplete  CycleStatus = "complete"
)

// PaymentStatus is the state of one member's contribution to a cycle.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// PaymentMethod records how a contribution was settled.
type PaymentMethod string

const (
	MethodWallet PaymentMethod = "wallet"
	MethodCard   PaymentMethod = "card"
)

// Store-level errors.
var (
	ErrFundNotFound       = errors.New("fund not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrCycleNotFound      = errors.New("cycle not found")
	ErrNoPaymentProfile   = errors.New("no payment profile on file")
	ErrDuplicatePayment   = errors.New("contribution payment already recorded")
)

// Fund is a rotating savings group. The pot is ledger-visible through a
// synthetic wallet owned by PotUserID.
type Fund struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	ContributionMinor int64     `json:"contribution_minor"`
	CautionMinor      int64     `json:"caution_minor"` // 0 = no deposit required
	Currency          string    `json:"currency"`
	PotUserID         string    `json:"pot_user_id"`
	Tier              string    `json:"tier,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Membership ties a user to a fund.
type Membership struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	FundID   string           `json:"fund_id"`
	Status   MembershipStatus `json:"status"`
	JoinedAt time.Time        `json:"joined_at"`
}

// Cycle is one payout round: on DueDate the pooled contributions go to
// the beneficiary, who does not pay into their own round.
type Cycle struct {
	ID                string      `json:"id"`
	FundID            string      `json:"fund_id"`
	Sequence          int         `json:"sequence"`
	DueDate           time.Time   `json:"due_date"`
	BeneficiaryUserID string      `json:"beneficiary_user_id"`
	Status            CycleStatus `json:"status"`
}

// ContributionPayment records one member's contribution to one cycle.
// Late is fixed at record time against the cycle due date.
type ContributionPayment struct {
	ID       string        `json:"id"`
	CycleID  string        `json:"cycle_id"`
	FundID   string        `json:"fund_id"`
	UserID   string        `json:"user_id"`
	Amount   int64         `json:"amount_minor"`
	Status   PaymentStatus `json:"status"`
	Method   PaymentMethod `json:"method"`
	Late     bool          `json:"late"`
	PaidAt   time.Time     `json:"paid_at"`
	TxID     string        `json:"tx_id,omitempty"`
}

// Defaillance is a recorded default: a missed contribution that ended in
// exclusion.
type Defaillance struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FundID    string    `json:"fund_id"`
	CycleID   string    `json:"cycle_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentProfile is the member's saved off-session payment method at the
// gateway.
type PaymentProfile struct {
	UserID      string `json:"user_id"`
	CustomerRef string `json:"customer_ref"`
	MethodRef   string `json:"method_ref"`
}
