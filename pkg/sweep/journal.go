package sweep

import (
	"context"
	"sync"
	"time"
)

// Entry is the escalation guard row for one (cycle, member) pair: the
// last ladder step taken and the calendar day it was taken on.
type Entry struct {
	CycleID string
	UserID  string
	Step    Step
	Day     string // YYYY-MM-DD, UTC
}

// Run is one sweep invocation, journaled for audit.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    string // serialized Summary
}

// Journal persists the escalation guard and the run log. The guard row
// is written only after a step's side effects succeeded, so a failed
// member retries the same step on the next run.
type Journal interface {
	GetEntry(ctx context.Context, cycleID, userID string) (*Entry, error)
	SetEntry(ctx context.Context, e *Entry) error
	RecordRun(ctx context.Context, r *Run) error
}

// MemoryJournal is the in-process Journal used by tests and dry runs.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	runs    []*Run
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]*Entry)}
}

func journalKey(cycleID, userID string) string {
	return cycleID + "/" + userID
}

func (j *MemoryJournal) GetEntry(ctx context.Context, cycleID, userID string) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	e, ok := j.entries[journalKey(cycleID, userID)]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (j *MemoryJournal) SetEntry(ctx context.Context, e *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *e
	j.entries[journalKey(e.CycleID, e.UserID)] = &cp
	return nil
}

func (j *MemoryJournal) RecordRun(ctx context.Context, r *Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *r
	j.runs = append(j.runs, &cp)
	return nil
}

// Runs returns the journaled runs, oldest first.
func (j *MemoryJournal) Runs() []*Run {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*Run, len(j.runs))
	copy(out, j.runs)
	return out
}
