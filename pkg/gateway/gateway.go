// Package gateway defines the narrow contract the core consumes from
// the external payment provider, plus the webhook reconciler that
// applies asynchronous payment results to the ledger exactly once.
package gateway

import (
	"context"
	"errors"

	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
)

// ErrGateway wraps any failure of the external provider. The attempted
// movement is not applied; the caller retries on the next sweep.
var ErrGateway = errors.New("payment gateway error")

// ChargeStatus is the provider's verdict on a charge.
type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargePending   ChargeStatus = "pending"
	ChargeFailed    ChargeStatus = "failed"
)

// Charge is the result of an off-session charge attempt.
type Charge struct {
	ID     string       `json:"id"`
	Status ChargeStatus `json:"status"`
}

// Payout is the result of a transfer to an external account.
type Payout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Account reports payout readiness of a connected account (KYC-gated).
type Account struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// ChargeMetadata is the correlation data attached to a charge.
type ChargeMetadata struct {
	UserID  string `json:"user_id"`
	FundID  string `json:"fund_id,omitempty"`
	CycleID string `json:"cycle_id,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// Gateway is the payment provider contract. Calls are synchronous and
// blocking; a failure is terminal for the day's attempt.
type Gateway interface {
	// CreateOffSessionCharge charges a saved payment method without the
	// customer present.
	CreateOffSessionCharge(ctx context.Context, customerRef, methodRef string, amount finance.Money, meta ChargeMetadata) (*Charge, error)

	// CreateTransfer pays out to an external account.
	CreateTransfer(ctx context.Context, destinationAccount string, amount finance.Money) (*Payout, error)

	// RetrieveAccount reports charge/payout readiness for an account.
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
}
