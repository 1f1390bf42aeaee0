package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Moziba-Labs/likelemba/core/pkg/caution"
	"github.com/Moziba-Labs/likelemba/core/pkg/finance"
	"github.com/Moziba-Labs/likelemba/core/pkg/gateway"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
	"github.com/Moziba-Labs/likelemba/core/pkg/movement"
	"github.com/Moziba-Labs/likelemba/core/pkg/notify"
	"github.com/Moziba-Labs/likelemba/core/pkg/penalty"
	"github.com/Moziba-Labs/likelemba/core/pkg/scoring"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

// Policy is the collection policy a runner applies; loaded per deploy
// from configuration.
type Policy struct {
	LateFeeMinor int64 `yaml:"late_fee_minor"`
	// Parallelism bounds concurrent member processing within a cycle.
	// 1 means sequential.
	Parallelism int `yaml:"parallelism"`
}

// DefaultPolicy mirrors the production defaults.
func DefaultPolicy() Policy {
	return Policy{LateFeeMinor: 1000, Parallelism: 1}
}

// RunError is one member's failure, downgraded from an error so the
// rest of the population still gets processed.
type RunError struct {
	CycleID string `json:"cycleId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// Summary is what a sweep invocation reports back to the scheduler.
type Summary struct {
	RunID                 string     `json:"runId"`
	Skipped               bool       `json:"skipped"`
	RappelsEnvoyes        int        `json:"rappelsEnvoyes"`
	PrelevementsEffectues int        `json:"prelevementsEffectues"`
	PenalitesAppliquees   int        `json:"penalitesAppliquees"`
	Exclusions            int        `json:"exclusions"`
	Erreurs               []RunError `json:"erreurs"`
	StartedAt             time.Time  `json:"startedAt"`
	FinishedAt            time.Time  `json:"finishedAt"`
}

// Mover is the slice of the movement engine the runner needs.
type Mover interface {
	Move(ctx context.Context, req movement.Request) (*movement.Result, error)
}

// Runner walks every open cycle and advances unpaid members along the
// escalation ladder.
type Runner struct {
	tontines  tontine.Store
	wallets   ledger.Store
	mover     Mover
	penalties *penalty.Engine
	cautions  *caution.Manager
	scorer    *scoring.Scorer
	gw        gateway.Gateway
	notifier  *notify.Dispatcher
	journal   Journal
	lock      DayLock
	policy    Policy
	clock     func() time.Time
	logger    *slog.Logger
}

// NewRunner wires a sweep runner. gw may be nil; the auto-debit step
// then only uses wallet balances.
func NewRunner(
	tontines tontine.Store,
	wallets ledger.Store,
	mover Mover,
	penalties *penalty.Engine,
	cautions *caution.Manager,
	scorer *scoring.Scorer,
	gw gateway.Gateway,
	notifier *notify.Dispatcher,
	journal Journal,
	lock DayLock,
	policy Policy,
) *Runner {
	if policy.Parallelism < 1 {
		policy.Parallelism = 1
	}
	return &Runner{
		tontines:  tontines,
		wallets:   wallets,
		mover:     mover,
		penalties: penalties,
		cautions:  cautions,
		scorer:    scorer,
		gw:        gw,
		notifier:  notifier,
		journal:   journal,
		lock:      lock,
		policy:    policy,
		clock:     time.Now,
		logger:    slog.Default().With("component", "sweep"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

// Run executes one sweep pass. It only errors when the cycle list
// itself cannot be read; member-level failures land in Summary.Erreurs.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	now := r.clock().UTC()
	day := now.Format("2006-01-02")
	sum := &Summary{RunID: uuid.New().String(), StartedAt: now, Erreurs: []RunError{}}

	held, err := r.lock.Acquire(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("acquire day lock: %w", err)
	}
	if !held {
		sum.Skipped = true
		sum.FinishedAt = r.clock().UTC()
		r.logger.InfoContext(ctx, "sweep skipped, day lock already held", "day", day)
		return sum, nil
	}

	cycles, err := r.tontines.ListOpenCycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open cycles: %w", err)
	}
	r.logger.InfoContext(ctx, "sweep started", "run_id", sum.RunID, "day", day, "open_cycles", len(cycles))

	collector := &summaryCollector{sum: sum}
	for _, cycle := range cycles {
		if err := r.sweepCycle(ctx, cycle, now, day, collector); err != nil {
			// Cycle-level read failures are recorded, not fatal.
			collector.addError(cycle.ID, "", err.Error())
		}
	}

	sum.FinishedAt = r.clock().UTC()
	r.recordRun(ctx, sum)
	r.logger.InfoContext(ctx, "sweep finished",
		"run_id", sum.RunID,
		"reminders", sum.RappelsEnvoyes,
		"debits", sum.PrelevementsEffectues,
		"penalties", sum.PenalitesAppliquees,
		"exclusions", sum.Exclusions,
		"errors", len(sum.Erreurs))
	return sum, nil
}

func (r *Runner) sweepCycle(ctx context.Context, cycle *tontine.Cycle, now time.Time, day string, collector *summaryCollector) error {
	target, due := stepFor(tontine.DaysUntilDue(cycle.DueDate, now))
	if !due {
		return nil
	}

	fund, err := r.tontines.GetFund(ctx, cycle.FundID)
	if err != nil {
		return fmt.Errorf("fund %s: %w", cycle.FundID, err)
	}
	members, err := r.tontines.ListActiveMembers(ctx, cycle.FundID)
	if err != nil {
		return fmt.Errorf("members of %s: %w", cycle.FundID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.policy.Parallelism)
	for _, member := range members {
		member := member
		if member.UserID == cycle.BeneficiaryUserID {
			continue
		}
		g.Go(func() error {
			if err := r.processMember(gctx, fund, cycle, member, target, day, collector); err != nil {
				collector.addError(cycle.ID, member.UserID, err.Error())
			}
			return nil
		})
	}
	return g.Wait()
}

// processMember advances one member one rung at most. The journal row
// moves only after the rung's side effects succeeded.
func (r *Runner) processMember(ctx context.Context, fund *tontine.Fund, cycle *tontine.Cycle, member *tontine.Membership, target Step, day string, collector *summaryCollector) error {
	paid, err := r.tontines.GetConfirmedPayment(ctx, cycle.ID, member.UserID)
	if err != nil {
		return fmt.Errorf("payment lookup: %w", err)
	}
	if paid != nil {
		return nil
	}

	prev, err := r.journal.GetEntry(ctx, cycle.ID, member.UserID)
	if err != nil {
		return fmt.Errorf("journal lookup: %w", err)
	}
	if prev != nil {
		if stepRank(prev.Step) >= stepRank(target) {
			return nil
		}
		if prev.Day == day {
			return nil
		}
	}

	switch target {
	case StepRemindedJ3:
		r.notifier.Send(ctx, member.UserID, notify.TemplateRappelJ3, r.dueData(fund, cycle))
		collector.addReminder()
	case StepRemindedJ1:
		r.notifier.Send(ctx, member.UserID, notify.TemplateRappelJ1, r.dueData(fund, cycle))
		collector.addReminder()
	case StepDebited:
		debited, err := r.autoDebit(ctx, fund, cycle, member)
		if err != nil {
			return err
		}
		if !debited {
			// Declined or no method on file: the member pays by hand
			// or rides the ladder down. The journal stays put so the
			// late branch still fires after the due date.
			r.notifier.Send(ctx, member.UserID, notify.TemplatePaiementManuel, r.dueData(fund, cycle))
			return nil
		}
		collector.addDebit()
		r.notifier.Send(ctx, member.UserID, notify.TemplateDebitEffectue, r.dueData(fund, cycle))
	case StepLateJ1:
		r.notifier.Send(ctx, member.UserID, notify.TemplateRetardJ1, r.dueData(fund, cycle))
		collector.addReminder()
	case StepPenalized:
		if err := r.penalize(ctx, fund, cycle, member); err != nil {
			return err
		}
		collector.addPenalty()
	case StepNoticeJ7:
		r.notifier.Send(ctx, member.UserID, notify.TemplateMiseEnDemeure, r.dueData(fund, cycle))
		collector.addReminder()
	case StepExcluded:
		if err := r.exclude(ctx, fund, cycle, member); err != nil {
			return err
		}
		collector.addExclusion()
	default:
		return nil
	}

	return r.journal.SetEntry(ctx, &Entry{
		CycleID: cycle.ID,
		UserID:  member.UserID,
		Step:    target,
		Day:     day,
	})
}

// autoDebit collects the contribution at the due date: wallet first,
// saved card as fallback. Returns false for outcomes the member must
// resolve by hand (short wallet and no card, or a declined card).
func (r *Runner) autoDebit(ctx context.Context, fund *tontine.Fund, cycle *tontine.Cycle, member *tontine.Membership) (bool, error) {
	amount := finance.New(fund.ContributionMinor, fund.Currency)

	wallet, err := r.wallets.GetWalletByUser(ctx, member.UserID)
	if err != nil && !errors.Is(err, ledger.ErrWalletNotFound) {
		return false, fmt.Errorf("wallet lookup: %w", err)
	}
	if wallet != nil && wallet.BalanceMinor >= amount.AmountMinor {
		res, err := r.mover.Move(ctx, movement.Request{
			FromUserID:     member.UserID,
			ToUserID:       fund.PotUserID,
			Amount:         amount,
			Kind:           ledger.KindContribution,
			IdempotencyKey: fmt.Sprintf("contribution:%s:%s", cycle.ID, member.UserID),
			Meta:           movement.Metadata{FundID: fund.ID, CycleID: cycle.ID, Description: "auto-debit"},
		})
		if err != nil {
			// A manual payment can race the sweep; the balance check
			// above is only advisory.
			if errors.Is(err, movement.ErrInsufficientFunds) {
				return false, nil
			}
			return false, err
		}
		return true, r.confirmPayment(ctx, fund, cycle, member, tontine.MethodWallet, res.Debit.ID)
	}

	if r.gw == nil {
		return false, nil
	}
	profile, err := r.tontines.GetPaymentProfile(ctx, member.UserID)
	if errors.Is(err, tontine.ErrNoPaymentProfile) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("payment profile: %w", err)
	}

	charge, err := r.gw.CreateOffSessionCharge(ctx, profile.CustomerRef, profile.MethodRef, amount, gateway.ChargeMetadata{
		UserID: member.UserID, FundID: fund.ID, CycleID: cycle.ID, Purpose: "contribution",
	})
	if err != nil {
		return false, fmt.Errorf("off-session charge: %w", err)
	}
	if charge.Status != gateway.ChargeSucceeded {
		return false, nil
	}

	// Card money arrives from outside; surface it in the pot's ledger
	// keyed by the charge id so a webhook replay cannot double-apply.
	res, err := r.mover.Move(ctx, movement.Request{
		ToUserID:       fund.PotUserID,
		Amount:         amount,
		Kind:           ledger.KindPotReceived,
		IdempotencyKey: "charge:" + charge.ID,
		Meta:           movement.Metadata{FundID: fund.ID, CycleID: cycle.ID, Description: "card contribution"},
	})
	if err != nil {
		return false, fmt.Errorf("record card contribution: %w", err)
	}
	return true, r.confirmPayment(ctx, fund, cycle, member, tontine.MethodCard, res.Credit.ID)
}

func (r *Runner) confirmPayment(ctx context.Context, fund *tontine.Fund, cycle *tontine.Cycle, member *tontine.Membership, method tontine.PaymentMethod, txID string) error {
	now := r.clock().UTC()
	err := r.tontines.RecordPayment(ctx, &tontine.ContributionPayment{
		ID:      uuid.New().String(),
		CycleID: cycle.ID,
		FundID:  fund.ID,
		UserID:  member.UserID,
		Amount:  fund.ContributionMinor,
		Status:  tontine.PaymentConfirmed,
		Method:  method,
		Late:    tontine.DaysUntilDue(cycle.DueDate, now) < 0,
		PaidAt:  now,
		TxID:    txID,
	})
	if errors.Is(err, tontine.ErrDuplicatePayment) {
		return nil
	}
	return err
}

func (r *Runner) penalize(ctx context.Context, fund *tontine.Fund, cycle *tontine.Cycle, member *tontine.Membership) error {
	fee := finance.New(r.policy.LateFeeMinor, fund.Currency)
	if _, err := r.penalties.Appliquer(ctx, member.UserID, fund.ID, cycle.ID, fee, "contribution impayee"); err != nil {
		return fmt.Errorf("apply penalty: %w", err)
	}
	if member.Status == tontine.MemberActive {
		if err := r.tontines.SetMembershipStatus(ctx, member.UserID, fund.ID, tontine.MemberSuspended); err != nil {
			return fmt.Errorf("suspend member: %w", err)
		}
	}
	r.notifier.Send(ctx, member.UserID, notify.TemplatePenaliteAppliquee, map[string]string{
		"fund":   fund.Name,
		"amount": fee.String(),
	})
	return nil
}

func (r *Runner) exclude(ctx context.Context, fund *tontine.Fund, cycle *tontine.Cycle, member *tontine.Membership) error {
	reason := "exclusion pour contribution impayee"

	if _, err := r.cautions.Saisir(ctx, member.UserID, fund.ID, reason); err != nil {
		return fmt.Errorf("seize caution: %w", err)
	}
	if err := r.tontines.SetMembershipStatus(ctx, member.UserID, fund.ID, tontine.MemberExcluded); err != nil {
		return fmt.Errorf("exclude member: %w", err)
	}
	if err := r.tontines.CreateDefaillance(ctx, &tontine.Defaillance{
		ID:        uuid.New().String(),
		UserID:    member.UserID,
		FundID:    fund.ID,
		CycleID:   cycle.ID,
		Reason:    reason,
		CreatedAt: r.clock().UTC(),
	}); err != nil {
		return fmt.Errorf("record defaillance: %w", err)
	}

	if score, err := r.scorer.Score(ctx, member.UserID); err == nil {
		r.logger.InfoContext(ctx, "member excluded",
			"user_id", member.UserID, "fund_id", fund.ID, "new_score", score.Score, "tier", score.Tier)
	} else {
		r.logger.WarnContext(ctx, "score refresh after exclusion failed",
			"user_id", member.UserID, "error", err)
	}

	r.notifier.Send(ctx, member.UserID, notify.TemplateExclusion, map[string]string{"fund": fund.Name})
	return nil
}

func (r *Runner) dueData(fund *tontine.Fund, cycle *tontine.Cycle) map[string]string {
	return map[string]string{
		"fund":     fund.Name,
		"amount":   finance.New(fund.ContributionMinor, fund.Currency).String(),
		"due_date": cycle.DueDate.UTC().Format("2006-01-02"),
	}
}

func (r *Runner) recordRun(ctx context.Context, sum *Summary) {
	raw, err := json.Marshal(sum)
	if err != nil {
		raw = []byte("{}")
	}
	if err := r.journal.RecordRun(ctx, &Run{
		ID:         sum.RunID,
		StartedAt:  sum.StartedAt,
		FinishedAt: sum.FinishedAt,
		Summary:    string(raw),
	}); err != nil {
		r.logger.WarnContext(ctx, "sweep run not journaled", "run_id", sum.RunID, "error", err)
	}
}

// summaryCollector guards the summary counters when members are
// processed in parallel.
type summaryCollector struct {
	mu  sync.Mutex
	sum *Summary
}

func (c *summaryCollector) addReminder() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sum.RappelsEnvoyes++
}

func (c *summaryCollector) addDebit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sum.PrelevementsEffectues++
}

func (c *summaryCollector) addPenalty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sum.PenalitesAppliquees++
}

func (c *summaryCollector) addExclusion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sum.Exclusions++
}

func (c *summaryCollector) addError(cycleID, userID, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sum.Erreurs = append(c.sum.Erreurs, RunError{CycleID: cycleID, UserID: userID, Message: msg})
}
