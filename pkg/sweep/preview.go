package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

// PreviewCandidate is one member a real sweep would act on today.
type PreviewCandidate struct {
	UserID      string `json:"userId"`
	CurrentStep Step   `json:"currentStep"`
	TargetStep  Step   `json:"targetStep"`
}

// CyclePreview lists the candidates of one open cycle.
type CyclePreview struct {
	CycleID      string             `json:"cycleId"`
	FundID       string             `json:"fundId"`
	DaysUntilDue int                `json:"daysUntilDue"`
	TargetStep   Step               `json:"targetStep"`
	Candidates   []PreviewCandidate `json:"candidates"`
}

// Preview is a dry sweep: what Run would do right now, without doing it.
type Preview struct {
	Day         string         `json:"day"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Cycles      []CyclePreview `json:"cycles"`
}

// Preview computes today's candidates without the day lock and without
// side effects. Cycles whose offset sits between rungs are omitted.
func (r *Runner) Preview(ctx context.Context) (*Preview, error) {
	now := r.clock().UTC()
	day := now.Format("2006-01-02")
	out := &Preview{Day: day, GeneratedAt: now, Cycles: []CyclePreview{}}

	cycles, err := r.tontines.ListOpenCycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open cycles: %w", err)
	}

	for _, cycle := range cycles {
		days := tontine.DaysUntilDue(cycle.DueDate, now)
		target, due := stepFor(days)
		if !due {
			continue
		}
		cp := CyclePreview{
			CycleID:      cycle.ID,
			FundID:       cycle.FundID,
			DaysUntilDue: days,
			TargetStep:   target,
			Candidates:   []PreviewCandidate{},
		}

		members, err := r.tontines.ListActiveMembers(ctx, cycle.FundID)
		if err != nil {
			return nil, fmt.Errorf("members of %s: %w", cycle.FundID, err)
		}
		for _, member := range members {
			if member.UserID == cycle.BeneficiaryUserID {
				continue
			}
			paid, err := r.tontines.GetConfirmedPayment(ctx, cycle.ID, member.UserID)
			if err != nil {
				return nil, fmt.Errorf("payment lookup: %w", err)
			}
			if paid != nil {
				continue
			}
			current := StepScheduled
			prev, err := r.journal.GetEntry(ctx, cycle.ID, member.UserID)
			if err != nil {
				return nil, fmt.Errorf("journal lookup: %w", err)
			}
			if prev != nil {
				current = prev.Step
				if stepRank(prev.Step) >= stepRank(target) || prev.Day == day {
					continue
				}
			}
			cp.Candidates = append(cp.Candidates, PreviewCandidate{
				UserID:      member.UserID,
				CurrentStep: current,
				TargetStep:  target,
			})
		}
		out.Cycles = append(out.Cycles, cp)
	}
	return out, nil
}
