package caseflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/layout"
)

// Session binds one cohort and one task to a manager, a sequencer and a layout
// planner. Changing task or cohort means closing the session and creating a
// new one. Sessions share no state, so several can run side by side.
type Session struct {
	id      string
	cohort  *descriptor.Cohort
	task    Task
	manager *Manager
	seq     *Sequencer
	planner *layout.Planner
	log     Logger

	mu     sync.Mutex
	closed bool
}

func newSession(opts Options) (*Session, error) {
	if opts.Cohort == nil {
		return nil, fmt.Errorf("%w: cohort is required", ErrInvalidOptions)
	}
	if opts.Task == nil {
		return nil, ErrNoTask
	}
	factory := opts.Task.Factory()
	if factory == nil {
		return nil, fmt.Errorf("%w: task %q has no factory", ErrInvalidOptions, opts.Task.Name())
	}

	id := uuid.NewString()
	log := coalesce[Logger](opts.Logger, NopLogger{})
	log = sessionLogger{inner: log, session: id, task: opts.Task.Name()}

	m, err := NewManager(ManagerOptions{
		Cohort:     opts.Cohort,
		Factory:    factory,
		DataRoot:   opts.DataRoot,
		OutputRoot: opts.OutputRoot,
		Capacity:   opts.Capacity,
		GenStore:   opts.GenStore,
		Logger:     log,
		Hooks:      opts.Hooks,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      id,
		cohort:  opts.Cohort,
		task:    opts.Task,
		manager: m,
		planner: layout.NewPlanner(layout.Options{
			Orientation: opts.Orientation,
			Horizontal:  opts.Horizontal,
			Opacity:     opts.Opacity,
		}),
		log: log,
	}
	s.seq = NewSequencer(m, SequencerOptions{
		AutoSaveOnNavigate: opts.AutoSaveOnNavigate,
		OnActivate:         s.onActivate,
		Logger:             log,
		Hooks:              opts.Hooks,
	})

	log.Info("session opened", Fields{"cases": opts.Cohort.Len(), "capacity": m.Capacity()})
	return s, nil
}

func (s *Session) ID() string                 { return s.id }
func (s *Session) Cohort() *descriptor.Cohort { return s.cohort }
func (s *Session) Task() Task                 { return s.task }
func (s *Session) Manager() *Manager          { return s.manager }
func (s *Session) Sequencer() *Sequencer      { return s.seq }
func (s *Session) Planner() *layout.Planner   { return s.planner }

func (s *Session) Start(ctx context.Context) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.seq.Start(ctx)
}

func (s *Session) Next(ctx context.Context) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.seq.Next(ctx)
}

func (s *Session) Previous(ctx context.Context) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.seq.Previous(ctx)
}

func (s *Session) Goto(ctx context.Context, uid string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.seq.Goto(ctx, uid)
}

func (s *Session) Select(ctx context.Context, index int) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.seq.Select(ctx, index)
}

// Active returns the current unit.
func (s *Session) Active() (string, dataunit.Unit, bool) { return s.manager.Active() }

// RequestSave saves the current case.
func (s *Session) RequestSave(ctx context.Context) (dataunit.SaveResult, error) {
	if err := s.check(); err != nil {
		return dataunit.SaveResult{}, err
	}
	uid, _, ok := s.manager.Active()
	if !ok {
		return dataunit.SaveResult{}, fmt.Errorf("%w: no active case", ErrNotResident)
	}
	return s.manager.Save(ctx, uid)
}

// SetRoot points the session at a new data root. Resident units are flushed and
// the cursor is reset; units that could not be saved stay resident and are
// returned.
func (s *Session) SetRoot(ctx context.Context, root string) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.seq.Reset()
	s.planner.Invalidate()
	unsaved, err := s.manager.SetRoot(ctx, root)
	s.log.Info("data root changed", Fields{"root": root, "unsaved": len(unsaved)})
	return unsaved, err
}

// SetOrientation changes the panel set. The current plan is dropped; Layout
// computes a new one.
func (s *Session) SetOrientation(o layout.Orientation) {
	s.planner.SetOrientation(o)
}

// Layout returns the plan for the active unit, planning again if the last plan
// was invalidated. ok is false when the active unit is not visual.
func (s *Session) Layout() (layout.Plan, bool) {
	if p, ok := s.planner.Current(); ok {
		return p, true
	}
	_, u, ok := s.manager.Active()
	if !ok {
		return layout.Plan{}, false
	}
	return s.plan(u)
}

// Close flushes every resident unit. Edits that could not be saved are
// reported through a *TeardownError; their units are kept so the caller can
// retry Close after fixing the cause.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	unsaved, err := s.manager.FlushAll(ctx)
	if len(unsaved) > 0 {
		s.log.Error("session teardown left unsaved cases", Fields{"unsaved": unsaved, "err": err})
		return &TeardownError{Unsaved: unsaved, Err: err}
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if cerr := s.manager.Close(ctx); cerr != nil {
		return cerr
	}
	s.log.Info("session closed", nil)
	return nil
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) onActivate(ctx context.Context, ev CaseEvent, u dataunit.Unit) {
	if err := s.task.Receive(ctx, u); err != nil {
		s.log.Warn("task rejected case", Fields{"uid": ev.UID, "err": err})
	}
	s.plan(u)
}

func (s *Session) plan(u dataunit.Unit) (layout.Plan, bool) {
	v, ok := u.(dataunit.Visual)
	if !ok {
		// the previous case's panels no longer apply
		s.planner.Invalidate()
		return layout.Plan{}, false
	}
	res, primary := v.VisualResources()
	return s.planner.Plan(res, primary), true
}

// sessionLogger tags every record with the session and task.
type sessionLogger struct {
	inner   Logger
	session string
	task    string
}

func (l sessionLogger) with(f Fields) Fields {
	out := make(Fields, len(f)+2)
	for k, v := range f {
		out[k] = v
	}
	out["session"] = l.session
	out["task"] = l.task
	return out
}

func (l sessionLogger) Debug(msg string, f Fields) { l.inner.Debug(msg, l.with(f)) }
func (l sessionLogger) Info(msg string, f Fields)  { l.inner.Info(msg, l.with(f)) }
func (l sessionLogger) Warn(msg string, f Fields)  { l.inner.Warn(msg, l.with(f)) }
func (l sessionLogger) Error(msg string, f Fields) { l.inner.Error(msg, l.with(f)) }
