// Package finance provides the monetary value type shared by the ledger,
// the movement engine and the collection sweep.
//
// All amounts are integer minor units to avoid floating point errors.
package finance

import (
	"errors"
	"fmt"
)

// ErrCurrencyMismatch is returned when arithmetic mixes currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money represents a monetary value in a specific currency.
type Money struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"` // ISO 4217 code
	Scale       int    `json:"scale"`    // e.g. 2 for EUR/USD, 0 for XAF/XOF
}

// scaleFor returns the minor-unit scale of an ISO 4217 currency.
// Franc CFA currencies have no minor unit.
func scaleFor(currency string) int {
	switch currency {
	case "XAF", "XOF", "JPY":
		return 0
	default:
		return 2
	}
}

// New creates a Money value in the given currency.
func New(amountMinor int64, currency string) Money {
	return Money{
		AmountMinor: amountMinor,
		Currency:    currency,
		Scale:       scaleFor(currency),
	}
}

// Add adds two Money amounts. Returns error on currency mismatch.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{
		AmountMinor: m.AmountMinor + other.AmountMinor,
		Currency:    m.Currency,
		Scale:       m.Scale,
	}, nil
}

// Sub subtracts other from m. Returns error on currency mismatch.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{
		AmountMinor: m.AmountMinor - other.AmountMinor,
		Currency:    m.Currency,
		Scale:       m.Scale,
	}, nil
}

// IsZero returns true if the amount is 0.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsPositive returns true if the amount is > 0.
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

// IsNegative returns true if the amount is < 0.
func (m Money) IsNegative() bool {
	return m.AmountMinor < 0
}

// LessThan reports whether m < other. Mismatched currencies compare false.
func (m Money) LessThan(other Money) bool {
	return m.Currency == other.Currency && m.AmountMinor < other.AmountMinor
}

// String renders the amount for logs, e.g. "2500 XAF" or "25.00 EUR".
func (m Money) String() string {
	if m.Scale == 0 {
		return fmt.Sprintf("%d %s", m.AmountMinor, m.Currency)
	}
	div := int64(1)
	for i := 0; i < m.Scale; i++ {
		div *= 10
	}
	return fmt.Sprintf("%d.%0*d %s", m.AmountMinor/div, m.Scale, m.AmountMinor%div, m.Currency)
}
