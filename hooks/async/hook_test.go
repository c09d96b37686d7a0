package asynchook

import (
	"reflect"
	"sync"
	"testing"

	"github.com/unkn0wn-root/caseflow"
)

type recorder struct {
	caseflow.NopHooks
	mu   sync.Mutex
	uids []string
	gate chan struct{}
}

func (r *recorder) CaseChanged(ev caseflow.CaseEvent) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.uids = append(r.uids, ev.UID)
	r.mu.Unlock()
}

func TestSingleWorkerKeepsOrder(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 1, 16)
	for _, uid := range []string{"p1", "p2", "p3"} {
		h.CaseChanged(caseflow.CaseEvent{UID: uid})
	}
	h.Close()
	if !reflect.DeepEqual(rec.uids, []string{"p1", "p2", "p3"}) {
		t.Fatalf("uids=%v", rec.uids)
	}
}

func TestFullQueueDrops(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	h := New(rec, 1, 1)
	// first event blocks the worker, second fills the queue, third is dropped
	for _, uid := range []string{"p1", "p2", "p3", "p4"} {
		h.CaseChanged(caseflow.CaseEvent{UID: uid})
	}
	close(rec.gate)
	h.Close()

	if h.Dropped() == 0 {
		t.Fatalf("expected drops")
	}
	if got := uint64(len(rec.uids)) + h.Dropped(); got != 4 {
		t.Fatalf("delivered+dropped=%d want 4", got)
	}

	before := h.Dropped()
	h.Evicted("p9")
	if h.Dropped() != before+1 {
		t.Fatalf("event after Close should count as dropped")
	}
}
