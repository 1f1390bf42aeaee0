// Package scoring computes the 0-100 reliability score that gates fund
// membership. The score is derived on demand from contribution payment
// history and recorded defaillances; it is never stored as an
// authoritative row.
package scoring

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Moziba-Labs/likelemba/core/pkg/penalty"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

// Tier buckets a score.
type Tier string

const (
	TierExcellent Tier = "excellent" // >= 90
	TierBon       Tier = "bon"       // >= 70
	TierMoyen     Tier = "moyen"     // >= 50
	TierFaible    Tier = "faible"    // >= 30
	TierBloque    Tier = "bloque"    // < 30, hard gate
)

// Scoring policy: fixed deductions from a starting score of 100,
// floored at zero.
const (
	baseScore          = 100
	latePaymentPenalty = 5  // late but eventually paid
	exclusionPenalty   = 25 // unresolved defaillance
)

// Score is the derived reliability result for a user.
type Score struct {
	UserID        string `json:"user_id"`
	Score         int    `json:"score"`
	Tier          Tier   `json:"tier"`
	TotalPayments int    `json:"total_payments"`
	OnTime        int    `json:"on_time"`
	Late          int    `json:"late"`
	Exclusions    int    `json:"exclusions"`
}

// Reason codes surfaced by the eligibility gate so the product can tell
// "score too low" from "unpaid penalties" from "no card on file".
const (
	ReasonEligible        = "eligible"
	ReasonScoreBloque     = "score_bloque"
	ReasonUnpaidPenalties = "unpaid_penalties"
	ReasonNoPaymentMethod = "no_payment_method"
)

// Eligibility is the join-time verdict for a user.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
	Score    *Score `json:"score,omitempty"`
}

// Scorer derives scores and enforces the join gates server-side.
type Scorer struct {
	tontines  tontine.Store
	penalties penalty.Store
	logger    *slog.Logger
}

// NewScorer creates a scorer over the tontine and penalty stores.
func NewScorer(tontines tontine.Store, penalties penalty.Store) *Scorer {
	return &Scorer{
		tontines:  tontines,
		penalties: penalties,
		logger:    slog.Default().With("component", "scoring"),
	}
}

// TierFor maps a score to its tier.
func TierFor(score int) Tier {
	switch {
	case score >= 90:
		return TierExcellent
	case score >= 70:
		return TierBon
	case score >= 50:
		return TierMoyen
	case score >= 30:
		return TierFaible
	default:
		return TierBloque
	}
}

// Score recomputes the user's reliability from payment history and
// defaillance count.
func (s *Scorer) Score(ctx context.Context, userID string) (*Score, error) {
	payments, err := s.tontines.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	exclusions, err := s.tontines.CountDefaillances(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &Score{UserID: userID, Exclusions: exclusions}
	for _, p := range payments {
		if p.Status != tontine.PaymentConfirmed {
			continue
		}
		result.TotalPayments++
		if p.Late {
			result.Late++
		} else {
			result.OnTime++
		}
	}

	score := baseScore - result.Late*latePaymentPenalty - exclusions*exclusionPenalty
	if score < 0 {
		score = 0
	}
	result.Score = score
	result.Tier = TierFor(score)
	return result, nil
}

// VerifierEligibilite re-verifies, server-side, that a user may join a
// new fund. The bloque tier is a hard gate; any unpaid penalty is a
// separate, stricter gate; a saved payment method is required for the
// auto-debit path.
func (s *Scorer) VerifierEligibilite(ctx context.Context, userID string) (*Eligibility, error) {
	score, err := s.Score(ctx, userID)
	if err != nil {
		return nil, err
	}
	if score.Tier == TierBloque {
		return &Eligibility{Eligible: false, Reason: ReasonScoreBloque, Score: score}, nil
	}

	unpaid, err := s.penalties.ListUnpaidByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(unpaid) > 0 {
		return &Eligibility{Eligible: false, Reason: ReasonUnpaidPenalties, Score: score}, nil
	}

	if _, err := s.tontines.GetPaymentProfile(ctx, userID); err != nil {
		if errors.Is(err, tontine.ErrNoPaymentProfile) {
			return &Eligibility{Eligible: false, Reason: ReasonNoPaymentMethod, Score: score}, nil
		}
		return nil, err
	}

	return &Eligibility{Eligible: true, Reason: ReasonEligible, Score: score}, nil
}
