// Package notify is the fire-and-forget notification boundary. Delivery
// failure is logged and swallowed: it must never fail or roll back the
// financial transition it reports.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// TemplateType names a notification template.
type TemplateType string

const (
	TemplateRappelJ3         TemplateType = "rappel_j3"          // due in 3 days
	TemplateRappelJ1         TemplateType = "rappel_j1"          // due tomorrow
	TemplateDebitEffectue    TemplateType = "debit_effectue"     // auto-debit succeeded
	TemplatePaiementManuel   TemplateType = "paiement_manuel"    // auto-debit failed, pay manually
	TemplateRetardJ1         TemplateType = "retard_j1"          // penalty in 2 days
	TemplatePenaliteAppliquee TemplateType = "penalite_appliquee" // late fee + suspension
	TemplateMiseEnDemeure    TemplateType = "mise_en_demeure"    // exclusion in 7 days
	TemplateExclusion        TemplateType = "exclusion"
	TemplateCautionSaisie    TemplateType = "caution_saisie"
	TemplateCautionRestituee TemplateType = "caution_restituee"
)

// Notifier delivers a templated notification over the product's
// channels (message plus optional short message). Implementations sit
// outside the core.
type Notifier interface {
	Notify(ctx context.Context, userID string, template TemplateType, data map[string]string) error
}

// Dispatcher wraps a Notifier with best-effort semantics.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. notifier may be nil, in which
// case every send is a logged no-op.
func NewDispatcher(notifier Notifier) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		logger:   slog.Default().With("component", "notify"),
	}
}

// Send delivers best-effort. It never returns an error.
func (d *Dispatcher) Send(ctx context.Context, userID string, template TemplateType, data map[string]string) {
	if d.notifier == nil {
		d.logger.DebugContext(ctx, "notifier not configured, dropping", "template", string(template), "user_id", userID)
		return
	}
	if err := d.notifier.Notify(ctx, userID, template, data); err != nil {
		d.logger.WarnContext(ctx, "notification delivery failed",
			"template", string(template), "user_id", userID, "error", err)
	}
}

// Recorder is a Notifier that stores what it was asked to send, for
// tests. It can be scripted to fail.
type Recorder struct {
	mu     sync.Mutex
	Sent   []Sent
	FailFor map[string]error // userID -> error
}

// Sent is one recorded notification.
type Sent struct {
	UserID   string
	Template TemplateType
	Data     map[string]string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{FailFor: make(map[string]error)}
}

func (r *Recorder) Notify(ctx context.Context, userID string, template TemplateType, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.FailFor[userID]; ok {
		return err
	}
	r.Sent = append(r.Sent, Sent{UserID: userID, Template: template, Data: data})
	return nil
}

// CountFor returns how many notifications were recorded for a user.
func (r *Recorder) CountFor(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.Sent {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// TemplatesFor returns the templates sent to a user, in order.
func (r *Recorder) TemplatesFor(userID string) []TemplateType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TemplateType
	for _, s := range r.Sent {
		if s.UserID == userID {
			out = append(out, s.Template)
		}
	}
	return out
}
