package scoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moziba-Labs/likelemba/core/pkg/penalty"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		score int
		want  Tier
	}{
		{100, TierExcellent},
		{90, TierExcellent},
		{89, TierBon},
		{70, TierBon},
		{69, TierMoyen},
		{50, TierMoyen},
		{49, TierFaible},
		{30, TierFaible},
		{29, TierBloque},
		{0, TierBloque},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierFor(tc.score), "score=%d", tc.score)
	}
}

func seedPayments(t *testing.T, s *tontine.MemoryStore, userID string, onTime, late int) {
	t.Helper()
	ctx := context.Background()
	n := 0
	add := func(isLate bool) {
		n++
		require.NoError(t, s.RecordPayment(ctx, &tontine.ContributionPayment{
			ID: fmt.Sprintf("%s-p-%d", userID, n), CycleID: fmt.Sprintf("c-%d", n), FundID: "f-1",
			UserID: userID, Amount: 5000, Status: tontine.PaymentConfirmed,
			Method: tontine.MethodWallet, Late: isLate, PaidAt: time.Now(),
		}))
	}
	for i := 0; i < onTime; i++ {
		add(false)
	}
	for i := 0; i < late; i++ {
		add(true)
	}
}

func TestScoreDeductions(t *testing.T) {
	tontines := tontine.NewMemoryStore()
	penalties := penalty.NewMemoryStore()
	s := NewScorer(tontines, penalties)
	ctx := context.Background()

	// Clean history scores 100.
	seedPayments(t, tontines, "u-clean", 5, 0)
	score, err := s.Score(ctx, "u-clean")
	require.NoError(t, err)
	assert.Equal(t, 100, score.Score)
	assert.Equal(t, TierExcellent, score.Tier)
	assert.Equal(t, 5, score.TotalPayments)
	assert.Equal(t, 5, score.OnTime)

	// Two late payments cost 5 each.
	seedPayments(t, tontines, "u-late", 3, 2)
	score, err = s.Score(ctx, "u-late")
	require.NoError(t, err)
	assert.Equal(t, 90, score.Score)
	assert.Equal(t, 2, score.Late)

	// One exclusion costs 25.
	require.NoError(t, tontines.CreateDefaillance(ctx, &tontine.Defaillance{
		ID: "d-1", UserID: "u-excl", FundID: "f-1", CycleID: "c-1", Reason: "missed contribution",
	}))
	score, err = s.Score(ctx, "u-excl")
	require.NoError(t, err)
	assert.Equal(t, 75, score.Score)
	assert.Equal(t, 1, score.Exclusions)
	assert.Equal(t, TierBon, score.Tier)
}

func TestScoreFloorsAtZero(t *testing.T) {
	tontines := tontine.NewMemoryStore()
	s := NewScorer(tontines, penalty.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tontines.CreateDefaillance(ctx, &tontine.Defaillance{
			ID: fmt.Sprintf("d-%d", i), UserID: "u-1", FundID: "f-1", CycleID: fmt.Sprintf("c-%d", i),
		}))
	}
	score, err := s.Score(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 0, score.Score)
	assert.Equal(t, TierBloque, score.Tier)
}

func TestVerifierEligibilite(t *testing.T) {
	ctx := context.Background()

	t.Run("bloque tier is a hard gate", func(t *testing.T) {
		tontines := tontine.NewMemoryStore()
		s := NewScorer(tontines, penalty.NewMemoryStore())
		for i := 0; i < 3; i++ {
			require.NoError(t, tontines.CreateDefaillance(ctx, &tontine.Defaillance{
				ID: fmt.Sprintf("d-%d", i), UserID: "u-1", FundID: "f-1", CycleID: fmt.Sprintf("c-%d", i),
			}))
		}
		elig, err := s.VerifierEligibilite(ctx, "u-1")
		require.NoError(t, err)
		assert.False(t, elig.Eligible)
		assert.Equal(t, ReasonScoreBloque, elig.Reason)
	})

	t.Run("unpaid penalty blocks even a good score", func(t *testing.T) {
		tontines := tontine.NewMemoryStore()
		penalties := penalty.NewMemoryStore()
		s := NewScorer(tontines, penalties)
		require.NoError(t, penalties.Insert(ctx, &penalty.Penalty{
			ID: "p-1", UserID: "u-1", FundID: "f-1", CycleID: "c-1",
			AmountMinor: 1000, Currency: "XAF", Status: penalty.StatusApplied,
		}))
		elig, err := s.VerifierEligibilite(ctx, "u-1")
		require.NoError(t, err)
		assert.False(t, elig.Eligible)
		assert.Equal(t, ReasonUnpaidPenalties, elig.Reason)
	})

	t.Run("missing payment method is its own reason", func(t *testing.T) {
		s := NewScorer(tontine.NewMemoryStore(), penalty.NewMemoryStore())
		elig, err := s.VerifierEligibilite(ctx, "u-1")
		require.NoError(t, err)
		assert.False(t, elig.Eligible)
		assert.Equal(t, ReasonNoPaymentMethod, elig.Reason)
	})

	t.Run("clean user with a card is eligible", func(t *testing.T) {
		tontines := tontine.NewMemoryStore()
		s := NewScorer(tontines, penalty.NewMemoryStore())
		require.NoError(t, tontines.SavePaymentProfile(ctx, &tontine.PaymentProfile{
			UserID: "u-1", CustomerRef: "cus_1", MethodRef: "pm_1",
		}))
		elig, err := s.VerifierEligibilite(ctx, "u-1")
		require.NoError(t, err)
		assert.True(t, elig.Eligible)
		assert.Equal(t, ReasonEligible, elig.Reason)
	})

	t.Run("paid penalty no longer blocks", func(t *testing.T) {
		tontines := tontine.NewMemoryStore()
		penalties := penalty.NewMemoryStore()
		s := NewScorer(tontines, penalties)
		require.NoError(t, penalties.Insert(ctx, &penalty.Penalty{
			ID: "p-1", UserID: "u-1", FundID: "f-1", CycleID: "c-1",
			AmountMinor: 1000, Currency: "XAF", Status: penalty.StatusApplied,
		}))
		require.NoError(t, penalties.SetPaid(ctx, "p-1", time.Now()))
		require.NoError(t, tontines.SavePaymentProfile(ctx, &tontine.PaymentProfile{
			UserID: "u-1", CustomerRef: "cus_1", MethodRef: "pm_1",
		}))
		elig, err := s.VerifierEligibilite(ctx, "u-1")
		require.NoError(t, err)
		assert.True(t, elig.Eligible)
	})
}
