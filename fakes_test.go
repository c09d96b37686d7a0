package caseflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/resolve"
)

var errDiskFull = errors.New("disk full")

// journal records lifecycle calls in order, e.g. "load:p1", "save:p1".
type journal struct {
	mu  sync.Mutex
	log []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	j.log = append(j.log, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

func (j *journal) entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.log...)
}

func (j *journal) count(prefix string) int {
	n := 0
	for _, e := range j.entries() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

type fakeUnit struct {
	uid string
	f   *fakeFactory

	mu       sync.Mutex
	value    string
	dirty    bool
	released bool
	saveErr  error
}

var (
	_ dataunit.Unit    = (*fakeUnit)(nil)
	_ dataunit.Focuser = (*fakeUnit)(nil)
)

func (u *fakeUnit) UID() string { return u.uid }

func (u *fakeUnit) Validate() dataunit.ValidationResult {
	if u.f.invalid[u.uid] {
		return dataunit.Invalid("no image")
	}
	return dataunit.Valid()
}

func (u *fakeUnit) MarkDirty() {
	u.mu.Lock()
	u.dirty = true
	u.mu.Unlock()
}

func (u *fakeUnit) IsDirty() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dirty
}

// edit changes the value and marks the unit dirty.
func (u *fakeUnit) edit(v string) {
	u.mu.Lock()
	u.value = v
	u.dirty = true
	u.mu.Unlock()
}

func (u *fakeUnit) failSaves(err error) {
	u.mu.Lock()
	u.saveErr = err
	u.mu.Unlock()
}

func (u *fakeUnit) Save(_ context.Context, _ string) (dataunit.SaveResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.f.j.add("save:%s", u.uid)
	if u.saveErr != nil {
		return dataunit.SaveResult{}, u.saveErr
	}
	u.f.persist(u.uid, u.value)
	u.dirty = false
	return dataunit.SaveResult{UID: u.uid}, nil
}

func (u *fakeUnit) Release() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.dirty {
		return errors.New("release of dirty unit")
	}
	u.released = true
	u.f.j.add("release:%s", u.uid)
	return nil
}

func (u *fakeUnit) isReleased() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.released
}

func (u *fakeUnit) FocusGained() { u.f.j.add("focus+:%s", u.uid) }
func (u *fakeUnit) FocusLost()   { u.f.j.add("focus-:%s", u.uid) }

// fakeFactory loads units whose value comes from its durable map, so a reload
// observes what was saved.
type fakeFactory struct {
	j       *journal
	fail    map[string]error
	invalid map[string]bool

	// started/gate let a test hold a load in flight.
	started chan string
	gate    chan struct{}

	mu      sync.Mutex
	durable map[string]string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		j:       &journal{},
		fail:    map[string]error{},
		invalid: map[string]bool{},
		durable: map[string]string{},
	}
}

func (f *fakeFactory) persist(uid, v string) {
	f.mu.Lock()
	f.durable[uid] = v
	f.mu.Unlock()
}

func (f *fakeFactory) saved(uid string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.durable[uid]
}

func (f *fakeFactory) Load(ctx context.Context, rec descriptor.CaseRecord, _ resolve.Resolution) (dataunit.Unit, error) {
	f.j.add("load:%s", rec.UID)
	if f.started != nil {
		f.started <- rec.UID
	}
	if f.gate != nil {
		<-f.gate
	}
	if err := f.fail[rec.UID]; err != nil {
		return nil, err
	}
	v := f.saved(rec.UID)
	if v == "" {
		v = "original:" + rec.UID
	}
	return &fakeUnit{uid: rec.UID, f: f, value: v}, nil
}

type recHooks struct {
	NopHooks
	mu       sync.Mutex
	changed  []CaseEvent
	skipped  []string
	failed   []string
	saveFail []string
	exceeded [][]string
	evicted  []string
	stale    []string
}

func (h *recHooks) CaseChanged(ev CaseEvent) {
	h.mu.Lock()
	h.changed = append(h.changed, ev)
	h.mu.Unlock()
}

func (h *recHooks) CaseSkipped(uid string, _ int) {
	h.mu.Lock()
	h.skipped = append(h.skipped, uid)
	h.mu.Unlock()
}

func (h *recHooks) LoadFailed(uid string, _ error) {
	h.mu.Lock()
	h.failed = append(h.failed, uid)
	h.mu.Unlock()
}

func (h *recHooks) SaveFailed(uid string, _ error, _ int, _ bool) {
	h.mu.Lock()
	h.saveFail = append(h.saveFail, uid)
	h.mu.Unlock()
}

func (h *recHooks) CapacityExceeded(_, _ int, unsaved []string) {
	h.mu.Lock()
	h.exceeded = append(h.exceeded, unsaved)
	h.mu.Unlock()
}

func (h *recHooks) Evicted(uid string) {
	h.mu.Lock()
	h.evicted = append(h.evicted, uid)
	h.mu.Unlock()
}

func (h *recHooks) StaleLoadDiscarded(uid string) {
	h.mu.Lock()
	h.stale = append(h.stale, uid)
	h.mu.Unlock()
}

func mustCohort(t *testing.T, uids ...string) *descriptor.Cohort {
	t.Helper()
	var b strings.Builder
	b.WriteString("uid,volume\n")
	for _, u := range uids {
		fmt.Fprintf(&b, "%s,%s.img\n", u, u)
	}
	c, err := descriptor.Parse("cohort.csv", strings.NewReader(b.String()), descriptor.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

func newTestManager(t *testing.T, f *fakeFactory, capacity int, h Hooks, uids ...string) *Manager {
	t.Helper()
	m, err := NewManager(ManagerOptions{
		Cohort:   mustCohort(t, uids...),
		Factory:  f,
		DataRoot: t.TempDir(),
		Capacity: capacity,
		Hooks:    h,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func mustActivate(t *testing.T, m *Manager, uid string) *fakeUnit {
	t.Helper()
	u, err := m.Activate(context.Background(), uid)
	if err != nil {
		t.Fatalf("Activate(%s): %v", uid, err)
	}
	return u.(*fakeUnit)
}
