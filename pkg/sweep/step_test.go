package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepFor(t *testing.T) {
	cases := []struct {
		days int
		step Step
		due  bool
	}{
		{10, "", false},
		{4, "", false},
		{3, StepRemindedJ3, true},
		{2, "", false},
		{1, StepRemindedJ1, true},
		{0, StepDebited, true},
		{-1, StepLateJ1, true},
		{-2, StepLateJ1, true},
		{-3, StepPenalized, true},
		{-6, StepPenalized, true},
		{-7, StepNoticeJ7, true},
		{-13, StepNoticeJ7, true},
		{-14, StepExcluded, true},
		{-40, StepExcluded, true},
	}
	for _, tc := range cases {
		step, due := stepFor(tc.days)
		assert.Equal(t, tc.due, due, "days %d", tc.days)
		assert.Equal(t, tc.step, step, "days %d", tc.days)
	}
}

func TestStepRankNeverMovesBackwards(t *testing.T) {
	ladder := []Step{StepScheduled, StepRemindedJ3, StepRemindedJ1, StepLateJ1, StepPenalized, StepNoticeJ7, StepExcluded}
	for i := 1; i < len(ladder); i++ {
		assert.Greater(t, stepRank(ladder[i]), stepRank(ladder[i-1]),
			"%s must outrank %s", ladder[i], ladder[i-1])
	}
	// The debit success path shares a rank with the late branch.
	assert.Equal(t, stepRank(StepLateJ1), stepRank(StepDebited))
}
