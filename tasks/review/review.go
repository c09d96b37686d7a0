// Package review is a minimal task: walk a cohort and record a verdict per
// case in its provenance annotations.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/caseflow"
	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/dataunit/fileunit"
)

const Name = "review"

const (
	keyVerdict  = "review.verdict"
	keyReviewer = "review.by"
	keyNote     = "review.note"
)

var (
	ErrUnsupportedUnit = errors.New("review: unsupported data unit")
	ErrBadVerdict      = errors.New("review: unknown verdict")
)

type Verdict string

const (
	Accepted  Verdict = "accepted"
	Rejected  Verdict = "rejected"
	NeedsWork Verdict = "needs-work"
)

func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(s); v {
	case Accepted, Rejected, NeedsWork:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadVerdict, s)
}

type Options struct {
	Units    fileunit.Options
	Reviewer string          // "" => Units.Identity.User
	Logger   caseflow.Logger // nil => NopLogger
}

// Task hands out file-backed units and remembers which cases it has seen.
type Task struct {
	factory  *fileunit.Factory
	reviewer string
	log      caseflow.Logger

	mu      sync.Mutex
	current *fileunit.Unit
	seen    []string
}

var _ caseflow.Task = (*Task)(nil)

func New(opts Options) (*Task, error) {
	f, err := fileunit.NewFactory(opts.Units)
	if err != nil {
		return nil, err
	}
	t := &Task{factory: f, reviewer: opts.Reviewer, log: opts.Logger}
	if t.reviewer == "" {
		t.reviewer = opts.Units.Identity.User
	}
	if t.log == nil {
		t.log = caseflow.NopLogger{}
	}
	return t, nil
}

// Register adds the review task to reg under Name.
func Register(reg *caseflow.Registry, opts Options) error {
	return reg.Register(Name, func() (caseflow.Task, error) { return New(opts) })
}

func (t *Task) Name() string              { return Name }
func (t *Task) Factory() dataunit.Factory { return t.factory }

func (t *Task) Receive(_ context.Context, u dataunit.Unit) error {
	fu, ok := u.(*fileunit.Unit)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedUnit, u)
	}
	t.mu.Lock()
	t.current = fu
	t.seen = append(t.seen, fu.UID())
	t.mu.Unlock()

	if v, ok := fu.Annotation(keyVerdict); ok {
		t.log.Info("case already reviewed", caseflow.Fields{"uid": fu.UID(), "verdict": v})
	}
	return nil
}

// Mark records a verdict on the current case. The unit becomes dirty and is
// saved on the next save or eviction.
func (t *Task) Mark(v Verdict, note string) error {
	if _, err := ParseVerdict(string(v)); err != nil {
		return err
	}
	t.mu.Lock()
	fu := t.current
	t.mu.Unlock()
	if fu == nil {
		return caseflow.ErrNotResident
	}
	fu.Annotate(keyVerdict, string(v))
	fu.Annotate(keyReviewer, t.reviewer)
	if note != "" {
		fu.Annotate(keyNote, note)
	}
	return nil
}

// VerdictOf returns the verdict stored on u, if any.
func VerdictOf(u dataunit.Unit) (Verdict, bool) {
	fu, ok := u.(*fileunit.Unit)
	if !ok {
		return "", false
	}
	v, ok := fu.Annotation(keyVerdict)
	return Verdict(v), ok
}

// Seen lists received uids in arrival order.
func (t *Task) Seen() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.seen...)
}
