// Package asynchook runs lifecycle hooks on background workers so a slow
// consumer (a display bridge, a metrics exporter) never stalls navigation.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // one worker keeps events ordered
//	defer hooks.Close()
//
//	s, _ := caseflow.New(caseflow.Options{
//	    Cohort: cohort,
//	    Task:   task,
//	    Hooks:  hooks,
//	})
//
// Events are dropped, and counted, when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/caseflow"
)

type Hooks struct {
	inner   caseflow.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ caseflow.Hooks = (*Hooks)(nil)

func New(inner caseflow.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped counts events discarded because the queue was full.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on a closed queue
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) CaseChanged(ev caseflow.CaseEvent) { h.try(func() { h.inner.CaseChanged(ev) }) }
func (h *Hooks) CaseSkipped(uid string, i int)     { h.try(func() { h.inner.CaseSkipped(uid, i) }) }
func (h *Hooks) LoadFailed(uid string, err error)  { h.try(func() { h.inner.LoadFailed(uid, err) }) }
func (h *Hooks) Evicted(uid string)                { h.try(func() { h.inner.Evicted(uid) }) }
func (h *Hooks) StaleLoadDiscarded(uid string)     { h.try(func() { h.inner.StaleLoadDiscarded(uid) }) }

func (h *Hooks) SaveFailed(uid string, err error, attempts int, final bool) {
	h.try(func() { h.inner.SaveFailed(uid, err, attempts, final) })
}

func (h *Hooks) CapacityExceeded(resident, capacity int, unsaved []string) {
	unsaved = append([]string(nil), unsaved...)
	h.try(func() { h.inner.CapacityExceeded(resident, capacity, unsaved) })
}
