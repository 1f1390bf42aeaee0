// Package sweep runs the daily collection pass over open contribution
// cycles: it reminds, auto-debits, penalizes, suspends and ultimately
// excludes members who have not paid, one escalation step per calendar
// day at most.
package sweep

// Step is a rung of the escalation ladder for one (cycle, member) pair.
// A pair never repeats a step and never moves backwards.
type Step string

const (
	StepScheduled  Step = "scheduled"
	StepRemindedJ3 Step = "reminded_j3"
	StepRemindedJ1 Step = "reminded_j1"
	StepDebited    Step = "debited"
	StepLateJ1     Step = "late_j1"
	StepPenalized  Step = "penalized_suspended"
	StepNoticeJ7   Step = "notice_j7"
	StepExcluded   Step = "excluded"
)

// stepRank orders the ladder. Debited and late_j1 share a rank: the
// day-0 debit attempt either settles the cycle or falls through to the
// late branch, never both.
func stepRank(s Step) int {
	switch s {
	case StepRemindedJ3:
		return 1
	case StepRemindedJ1:
		return 2
	case StepDebited, StepLateJ1:
		return 3
	case StepPenalized:
		return 4
	case StepNoticeJ7:
		return 5
	case StepExcluded:
		return 6
	default:
		return 0
	}
}

// stepFor maps the day offset to the step due at that offset. Days that
// sit between rungs (e.g. +2 or -5) trigger nothing; a sweep that
// missed days lands on the furthest rung the offset has reached.
func stepFor(daysUntilDue int) (Step, bool) {
	switch {
	case daysUntilDue > 3:
		return "", false
	case daysUntilDue == 3:
		return StepRemindedJ3, true
	case daysUntilDue == 2:
		return "", false
	case daysUntilDue == 1:
		return StepRemindedJ1, true
	case daysUntilDue == 0:
		return StepDebited, true
	case daysUntilDue == -1 || daysUntilDue == -2:
		return StepLateJ1, true
	case daysUntilDue >= -6:
		return StepPenalized, true
	case daysUntilDue >= -13:
		return StepNoticeJ7, true
	default:
		return StepExcluded, true
	}
}
