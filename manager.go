package caseflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/genstore"
	"github.com/unkn0wn-root/caseflow/resolve"
)

const defaultCapacity = 2

// State is the lifecycle state of one case.
type State uint8

const (
	StateAbsent State = iota
	StateLoading
	StateActive
	StateCached
	StateEvicting
	StateLoadFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateLoading:
		return "loading"
	case StateActive:
		return "resident-active"
	case StateCached:
		return "resident-cached"
	case StateEvicting:
		return "evicting"
	case StateLoadFailed:
		return "load-failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ErrStaleLoad is returned by Activate when the case was invalidated or the
// caller went away while its unit was loading. The unit has been released.
var ErrStaleLoad = errors.New("caseflow: load superseded")

// ManagerOptions configure a Manager. Cohort and Factory are required.
type ManagerOptions struct {
	Cohort     *descriptor.Cohort
	Factory    dataunit.Factory
	DataRoot   string
	OutputRoot string // "" => DataRoot

	Capacity int            // resident units including the active one; 0 => 2
	GenStore genstore.Store // case generations; nil => in-process
	Logger   Logger         // nil => NopLogger
	Hooks    Hooks          // nil => NopHooks
}

type entry struct {
	uid          string
	unit         dataunit.Unit
	state        State
	lastAccess   uint64
	saveFailures int
}

// Manager owns the mapping from uid to resident data unit.
//
// Invariants:
//   - at most one unit per uid; concurrent Activate calls for a uid share one load
//   - load, save and evict of one uid never overlap (per-uid lock)
//   - a dirty unit is only dropped after a successful save
//
// mu guards the maps and is never held across Load, Save or Release.
type Manager struct {
	cohort     *descriptor.Cohort
	factory    dataunit.Factory
	outputRoot string
	capacity   int
	gen        genstore.Store
	ownsGen    bool
	log        Logger
	hooks      Hooks
	sf         singleflight.Group

	mu       sync.Mutex
	dataRoot string
	entries  map[string]*entry
	loading  map[string]struct{}
	failed   map[string]error
	locks    map[string]*sync.Mutex
	active   string
	clock    uint64
	closing  bool // no new activations
	closed   bool // flushed clean and torn down
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Cohort == nil {
		return nil, fmt.Errorf("%w: cohort is required", ErrInvalidOptions)
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("%w: factory is required", ErrInvalidOptions)
	}
	if opts.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidOptions, opts.Capacity)
	}

	m := &Manager{
		cohort:     opts.Cohort,
		factory:    opts.Factory,
		dataRoot:   opts.DataRoot,
		outputRoot: coalesce(opts.OutputRoot, opts.DataRoot),
		capacity:   coalesce(opts.Capacity, defaultCapacity),
		gen:        opts.GenStore,
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		entries:    make(map[string]*entry),
		loading:    make(map[string]struct{}),
		failed:     make(map[string]error),
		locks:      make(map[string]*sync.Mutex),
	}
	if m.gen == nil {
		m.gen = genstore.NewLocal(genstore.LocalOptions{})
		m.ownsGen = true
	}
	return m, nil
}

func (m *Manager) Capacity() int { return m.capacity }

func (m *Manager) OutputRoot() string { return m.outputRoot }

func (m *Manager) DataRoot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataRoot
}

// Activate makes uid the active case and returns its unit. A resident unit is
// returned as-is, keeping in-progress edits. Otherwise the previously active
// unit is demoted, room is made under the capacity bound (saving before
// evicting), and the unit is loaded and validated.
//
// A case that previously failed to load is retried.
func (m *Manager) Activate(ctx context.Context, uid string) (dataunit.Unit, error) {
	rec, ok := m.cohort.Case(uid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUID, uid)
	}
	v, err, _ := m.sf.Do(uid, func() (any, error) {
		return m.activate(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return v.(dataunit.Unit), nil
}

func (m *Manager) activate(ctx context.Context, rec descriptor.CaseRecord) (dataunit.Unit, error) {
	uid := rec.UID
	l := m.lockFor(uid)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if e, ok := m.entries[uid]; ok {
		prev, changed := m.promoteLocked(e)
		m.mu.Unlock()
		if changed {
			m.focus(prev, e.unit)
		}
		return e.unit, nil
	}
	m.loading[uid] = struct{}{}
	root := m.dataRoot
	prev := m.demoteLocked()
	m.mu.Unlock()
	m.focus(prev, nil)

	defer func() {
		m.mu.Lock()
		delete(m.loading, uid)
		m.mu.Unlock()
	}()

	m.makeRoom(ctx)

	obs, err := m.gen.Snapshot(ctx, caseKey(uid))
	if err != nil {
		m.log.Warn("case gen snapshot failed; stale loads will not be detected", Fields{"uid": uid, "err": err})
	}

	u, err := m.load(ctx, rec, root)
	if err != nil {
		if ctx.Err() == nil {
			m.recordFailure(uid, err)
		}
		return nil, err
	}

	if m.stale(ctx, uid, obs) {
		if rerr := u.Release(); rerr != nil {
			m.log.Warn("release of stale unit failed", Fields{"uid": uid, "err": rerr})
		}
		m.hooks.StaleLoadDiscarded(uid)
		m.log.Info("discarded stale load", Fields{"uid": uid})
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrStaleLoad, uid, context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: %q", ErrStaleLoad, uid)
	}

	e := &entry{uid: uid, unit: u, state: StateActive}
	m.mu.Lock()
	delete(m.failed, uid)
	e.lastAccess = m.tick()
	m.entries[uid] = e
	prev = m.demoteLocked()
	m.active = uid
	resident := len(m.entries)
	m.mu.Unlock()
	m.focus(prev, u)

	m.log.Debug("case loaded", Fields{"uid": uid, "resident": resident})
	return u, nil
}

// load runs the factory and validation. It returns *LoadError or *ValidationError.
func (m *Manager) load(ctx context.Context, rec descriptor.CaseRecord, root string) (dataunit.Unit, error) {
	res := resolve.Resolve(rec, root)
	u, err := m.factory.Load(ctx, rec, res)
	if err != nil {
		return nil, &LoadError{UID: rec.UID, Err: err}
	}
	if u == nil {
		return nil, &LoadError{UID: rec.UID, Err: errors.New("factory returned no unit")}
	}
	if vr := u.Validate(); !vr.OK {
		if rerr := u.Release(); rerr != nil {
			m.log.Warn("release of invalid unit failed", Fields{"uid": rec.UID, "err": rerr})
		}
		return nil, &ValidationError{UID: rec.UID, Problems: vr.Problems, Err: vr.Err()}
	}
	return u, nil
}

func (m *Manager) stale(ctx context.Context, uid string, obs uint64) bool {
	if ctx.Err() != nil {
		return true
	}
	cur, err := m.gen.Snapshot(ctx, caseKey(uid))
	return err == nil && cur != obs
}

func (m *Manager) recordFailure(uid string, err error) {
	m.mu.Lock()
	m.failed[uid] = err
	m.mu.Unlock()
	m.hooks.LoadFailed(uid, err)
	m.log.Warn("case failed to load", Fields{"uid": uid, "err": err})
}

// makeRoom evicts least-recently-used cached units until one more unit fits.
// Candidates whose save fails, or that are busy, are skipped. If nothing can be
// evicted the bound is exceeded and reported.
func (m *Manager) makeRoom(ctx context.Context) {
	for {
		m.mu.Lock()
		if len(m.entries) < m.capacity {
			m.mu.Unlock()
			return
		}
		cands := m.lruCachedLocked()
		resident := len(m.entries)
		m.mu.Unlock()

		var unsaved []string
		evicted := false
		for _, uid := range cands {
			l := m.lockFor(uid)
			if !l.TryLock() {
				continue
			}
			err := m.evictLocked(ctx, uid)
			l.Unlock()
			if err == nil {
				evicted = true
				break
			}
			if errors.Is(err, ErrSaveFailed) {
				unsaved = append(unsaved, uid)
			}
		}
		if !evicted {
			m.log.Warn("capacity exceeded: no cached unit could be evicted safely",
				Fields{"resident": resident + 1, "capacity": m.capacity, "unsaved": unsaved})
			m.hooks.CapacityExceeded(resident+1, m.capacity, unsaved)
			return
		}
	}
}

// Evict saves uid if dirty, releases it and drops it. It refuses the active
// case. On a failed save the unit stays resident and dirty. Evicting a case
// that is not resident is a no-op.
func (m *Manager) Evict(ctx context.Context, uid string) error {
	if _, ok := m.cohort.Index(uid); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUID, uid)
	}
	l := m.lockFor(uid)
	l.Lock()
	defer l.Unlock()
	return m.evictLocked(ctx, uid)
}

// evictLocked requires the uid lock.
func (m *Manager) evictLocked(ctx context.Context, uid string) error {
	m.mu.Lock()
	e, ok := m.entries[uid]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if m.active == uid {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrActiveEviction, uid)
	}
	e.state = StateEvicting
	m.mu.Unlock()

	restore := func() {
		m.mu.Lock()
		e.state = StateCached
		m.mu.Unlock()
	}

	if e.unit.IsDirty() {
		if _, err := m.saveLocked(ctx, e, false); err != nil {
			restore()
			return err
		}
	}
	if err := e.unit.Release(); err != nil {
		restore()
		m.log.Warn("release failed; unit kept resident", Fields{"uid": uid, "err": err})
		return fmt.Errorf("release %q: %w", uid, err)
	}

	m.mu.Lock()
	delete(m.entries, uid)
	m.mu.Unlock()
	m.hooks.Evicted(uid)
	m.log.Debug("case evicted", Fields{"uid": uid})
	return nil
}

// Save saves a resident unit whether or not it is dirty.
func (m *Manager) Save(ctx context.Context, uid string) (dataunit.SaveResult, error) {
	if _, ok := m.cohort.Index(uid); !ok {
		return dataunit.SaveResult{}, fmt.Errorf("%w: %q", ErrUnknownUID, uid)
	}
	l := m.lockFor(uid)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	e, ok := m.entries[uid]
	m.mu.Unlock()
	if !ok {
		return dataunit.SaveResult{}, fmt.Errorf("%w: %q", ErrNotResident, uid)
	}
	return m.saveLocked(ctx, e, false)
}

// saveLocked requires the uid lock. final escalates failures to Error.
func (m *Manager) saveLocked(ctx context.Context, e *entry, final bool) (dataunit.SaveResult, error) {
	res, err := e.unit.Save(ctx, m.outputRoot)
	m.mu.Lock()
	if err != nil {
		e.saveFailures++
	} else {
		e.saveFailures = 0
	}
	attempts := e.saveFailures
	m.mu.Unlock()

	if err != nil {
		serr := &SaveError{UID: e.uid, Attempts: attempts, Err: err}
		f := Fields{"uid": e.uid, "attempts": attempts, "err": err}
		if final {
			m.log.Error("unsaved edits at teardown", f)
		} else {
			m.log.Warn("save failed; case kept resident", f)
		}
		m.hooks.SaveFailed(e.uid, serr, attempts, final)
		return res, serr
	}
	m.log.Info("case saved", Fields{"uid": e.uid, "files": len(res.Files), "unchanged": res.Unchanged})
	return res, nil
}

// FlushAll demotes the active case and evicts every resident unit, saving dirty
// ones first. It returns the uids that could not be evicted, in
// least-recently-used order, and the joined errors. Failures are reported as
// final.
func (m *Manager) FlushAll(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	prev := m.demoteLocked()
	uids := m.lruCachedLocked()
	m.mu.Unlock()
	m.focus(prev, nil)

	var (
		unsaved []string
		errs    []error
	)
	for _, uid := range uids {
		l := m.lockFor(uid)
		l.Lock()
		err := m.flushOneLocked(ctx, uid)
		l.Unlock()
		if err != nil {
			unsaved = append(unsaved, uid)
			errs = append(errs, err)
		}
	}
	return unsaved, errors.Join(errs...)
}

func (m *Manager) flushOneLocked(ctx context.Context, uid string) error {
	m.mu.Lock()
	e, ok := m.entries[uid]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if e.unit.IsDirty() {
		if _, err := m.saveLocked(ctx, e, true); err != nil {
			return err
		}
	}
	return m.evictLocked(ctx, uid)
}

// Invalidate marks uid's generation stale so an in-flight load of it is
// discarded on completion. A resident, non-active unit is evicted and a
// recorded load failure is cleared.
func (m *Manager) Invalidate(ctx context.Context, uid string) error {
	if _, ok := m.cohort.Index(uid); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUID, uid)
	}
	if _, err := m.gen.Bump(ctx, caseKey(uid)); err != nil {
		m.log.Warn("case gen bump failed", Fields{"uid": uid, "err": err})
	}
	m.mu.Lock()
	delete(m.failed, uid)
	_, loading := m.loading[uid]
	skip := loading || m.active == uid
	m.mu.Unlock()
	if skip {
		// an in-flight load sees the bumped generation and discards itself
		return nil
	}
	return m.Evict(ctx, uid)
}

// SetRoot switches the data root. Every case is invalidated and every resident
// unit flushed; units whose save fails stay resident. Returns those uids.
func (m *Manager) SetRoot(ctx context.Context, root string) ([]string, error) {
	for _, uid := range m.cohort.UIDs() {
		if _, err := m.gen.Bump(ctx, caseKey(uid)); err != nil {
			m.log.Warn("case gen bump failed", Fields{"uid": uid, "err": err})
		}
	}
	m.mu.Lock()
	m.dataRoot = root
	m.failed = make(map[string]error)
	m.mu.Unlock()
	return m.FlushAll(ctx)
}

// Close flushes all units and rejects further activations. It returns a
// *TeardownError when edits could not be saved; those units stay resident and
// a later Close retries them. Only a clean flush completes the close.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	m.mu.Unlock()

	unsaved, err := m.FlushAll(ctx)
	if len(unsaved) > 0 {
		return &TeardownError{Unsaved: unsaved, Err: err}
	}

	m.mu.Lock()
	done := m.closed
	m.closed = true
	m.mu.Unlock()
	if !done && m.ownsGen {
		_ = m.gen.Close(ctx)
	}
	return nil
}

// State reports the lifecycle state of uid. Unknown uids are absent.
func (m *Manager) State(uid string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[uid]; ok {
		return e.state
	}
	if _, ok := m.loading[uid]; ok {
		return StateLoading
	}
	if _, ok := m.failed[uid]; ok {
		return StateLoadFailed
	}
	return StateAbsent
}

// Failed reports whether uid's last load failed.
func (m *Manager) Failed(uid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.failed[uid]
	return ok
}

// LoadErr returns the error of uid's last failed load, or nil.
func (m *Manager) LoadErr(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[uid]
}

// Resident returns resident uids from least to most recently used.
func (m *Manager) Resident() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	es := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].lastAccess < es[j].lastAccess })
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.uid
	}
	return out
}

// Active returns the active case, if any.
func (m *Manager) Active() (string, dataunit.Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return "", nil, false
	}
	return m.active, m.entries[m.active].unit, true
}

// Unit returns a resident unit without changing recency.
func (m *Manager) Unit(uid string) (dataunit.Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[uid]
	if !ok {
		return nil, false
	}
	return e.unit, true
}

// promoteLocked makes e active. changed is false when e already was active;
// prev is the unit that lost focus, if any.
func (m *Manager) promoteLocked(e *entry) (prev dataunit.Unit, changed bool) {
	e.lastAccess = m.tick()
	if m.active == e.uid {
		return nil, false
	}
	prev = m.demoteLocked()
	e.state = StateActive
	m.active = e.uid
	return prev, true
}

// demoteLocked moves the active unit to cached and returns it.
func (m *Manager) demoteLocked() dataunit.Unit {
	if m.active == "" {
		return nil
	}
	e := m.entries[m.active]
	m.active = ""
	if e == nil {
		return nil
	}
	e.state = StateCached
	return e.unit
}

func (m *Manager) lruCachedLocked() []string {
	es := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.state == StateCached {
			es = append(es, e)
		}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].lastAccess < es[j].lastAccess })
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.uid
	}
	return out
}

// focus delivers FocusLost to lost and FocusGained to gained. Either may be nil.
func (m *Manager) focus(lost, gained dataunit.Unit) {
	if f, ok := lost.(dataunit.Focuser); ok {
		f.FocusLost()
	}
	if f, ok := gained.(dataunit.Focuser); ok {
		f.FocusGained()
	}
}

func (m *Manager) lockFor(uid string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[uid]
	if !ok {
		l = new(sync.Mutex)
		m.locks[uid] = l
	}
	return l
}

func (m *Manager) tick() uint64 {
	m.clock++
	return m.clock
}

func caseKey(uid string) string { return "case:" + uid }
