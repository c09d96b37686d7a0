package caseflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
)

// ErrIndexOutOfRange is returned by Select.
var ErrIndexOutOfRange = errors.New("caseflow: index out of range")

// SequencerOptions configure a Sequencer.
type SequencerOptions struct {
	// AutoSaveOnNavigate saves the current unit, if dirty, before moving away.
	// A failed save blocks the move.
	AutoSaveOnNavigate bool

	// OnActivate runs after every successful transition, before CaseChanged.
	OnActivate func(ctx context.Context, ev CaseEvent, u dataunit.Unit)

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// Sequencer walks the cohort in file order. Transitions are serialized: one
// finishes, successfully or not, before the next starts.
type Sequencer struct {
	m          *Manager
	cohort     *descriptor.Cohort
	autoSave   bool
	onActivate func(ctx context.Context, ev CaseEvent, u dataunit.Unit)
	log        Logger
	hooks      Hooks

	mu    sync.Mutex
	index int // -1 => none
}

func NewSequencer(m *Manager, opts SequencerOptions) *Sequencer {
	return &Sequencer{
		m:          m,
		cohort:     m.cohort,
		autoSave:   opts.AutoSaveOnNavigate,
		onActivate: opts.OnActivate,
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		index:      -1,
	}
}

// Index is the current zero-based index, -1 when no case is current.
func (s *Sequencer) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Current returns the uid of the current case.
func (s *Sequencer) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 {
		return "", false
	}
	return s.cohort.Cases[s.index].UID, true
}

func (s *Sequencer) Total() int { return s.cohort.Len() }

// Start activates the first eligible case when none is current.
func (s *Sequencer) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= 0 {
		return false, nil
	}
	return s.stepLocked(ctx, +1)
}

// Next moves to the following eligible case. At the last case it does nothing
// and reports moved=false. With no current case it behaves like Start.
func (s *Sequencer) Next(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(ctx, +1)
}

// Previous moves to the preceding eligible case. At the first case, or with no
// current case, it does nothing.
func (s *Sequencer) Previous(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 {
		return false, nil
	}
	return s.stepLocked(ctx, -1)
}

// HasNext reports whether Next has an eligible candidate.
func (s *Sequencer) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidatesLocked(+1)) > 0
}

// HasPrevious reports whether Previous has an eligible candidate.
func (s *Sequencer) HasPrevious() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 {
		return false
	}
	return len(s.candidatesLocked(-1)) > 0
}

// Goto activates uid directly, retrying it if it failed before. On failure
// the previous case is restored.
func (s *Sequencer) Goto(ctx context.Context, uid string) error {
	i, ok := s.cohort.Index(uid)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUID, uid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jumpLocked(ctx, i)
}

// Select is Goto by index.
func (s *Sequencer) Select(ctx context.Context, index int) error {
	if index < 0 || index >= s.cohort.Len() {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, s.cohort.Len())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jumpLocked(ctx, index)
}

// Reset forgets the current case without touching the cache.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	s.index = -1
	s.mu.Unlock()
}

func (s *Sequencer) jumpLocked(ctx context.Context, i int) error {
	if i == s.index {
		// already current; activation only refreshes recency
		_, err := s.m.Activate(ctx, s.cohort.Cases[i].UID)
		return err
	}
	if err := s.autoSaveLocked(ctx); err != nil {
		return err
	}
	orig := s.index
	u, err := s.m.Activate(ctx, s.cohort.Cases[i].UID)
	if err != nil {
		s.restoreLocked(ctx, orig)
		return err
	}
	s.arriveLocked(ctx, i, u)
	return nil
}

// stepLocked tries candidates in direction dir until one activates. Cases that
// failed earlier are skipped. If every attempted candidate fails the original
// case is restored and ErrNoEligibleCase is returned alongside the failures.
func (s *Sequencer) stepLocked(ctx context.Context, dir int) (bool, error) {
	if len(s.candidatesLocked(dir)) == 0 {
		if s.skippedAnyLocked(dir) {
			return false, ErrNoEligibleCase
		}
		return false, nil
	}
	if err := s.autoSaveLocked(ctx); err != nil {
		return false, err
	}

	orig := s.index
	var errs []error
	for i := orig + dir; i >= 0 && i < s.cohort.Len(); i += dir {
		uid := s.cohort.Cases[i].UID
		if s.m.Failed(uid) {
			s.hooks.CaseSkipped(uid, i)
			continue
		}
		u, err := s.m.Activate(ctx, uid)
		if err == nil {
			s.arriveLocked(ctx, i, u)
			return true, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil || errors.Is(err, ErrSessionClosed) {
			break
		}
		s.hooks.CaseSkipped(uid, i)
		s.log.Info("skipping case", Fields{"uid": uid, "index": i, "err": err})
	}
	s.restoreLocked(ctx, orig)
	return false, errors.Join(append([]error{ErrNoEligibleCase}, errs...)...)
}

// candidatesLocked lists indices in direction dir that have not failed.
func (s *Sequencer) candidatesLocked(dir int) []int {
	var out []int
	for i := s.index + dir; i >= 0 && i < s.cohort.Len(); i += dir {
		if s.m.Failed(s.cohort.Cases[i].UID) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (s *Sequencer) skippedAnyLocked(dir int) bool {
	i := s.index + dir
	return i >= 0 && i < s.cohort.Len()
}

func (s *Sequencer) autoSaveLocked(ctx context.Context) error {
	if !s.autoSave || s.index < 0 {
		return nil
	}
	uid := s.cohort.Cases[s.index].UID
	u, ok := s.m.Unit(uid)
	if !ok || !u.IsDirty() {
		return nil
	}
	_, err := s.m.Save(ctx, uid)
	return err
}

// restoreLocked re-activates the case at orig after failed attempts demoted it.
func (s *Sequencer) restoreLocked(ctx context.Context, orig int) {
	if orig < 0 {
		s.index = -1
		return
	}
	uid := s.cohort.Cases[orig].UID
	if _, err := s.m.Activate(ctx, uid); err != nil {
		s.log.Warn("could not restore previous case", Fields{"uid": uid, "err": err})
		s.index = -1
		return
	}
	s.index = orig
}

func (s *Sequencer) arriveLocked(ctx context.Context, i int, u dataunit.Unit) {
	s.index = i
	ev := CaseEvent{UID: s.cohort.Cases[i].UID, Index: i, Total: s.cohort.Len()}
	if s.onActivate != nil {
		s.onActivate(ctx, ev, u)
	}
	s.hooks.CaseChanged(ev)
	s.log.Debug("case changed", Fields{"uid": ev.UID, "index": i, "total": ev.Total})
}
