package caseflow

// Hooks are callbacks for lifecycle events. The display and task layers couple
// to the manager through them. Implementations must be cheap and non-blocking;
// wrap slow consumers with hooks/async.
type Hooks interface {
	// The current case changed. Index is zero-based into the cohort.
	CaseChanged(ev CaseEvent)

	// Navigation passed over a case that failed to load earlier.
	CaseSkipped(uid string, index int)

	// Loading or validating a case failed. The case is flagged, not fatal.
	LoadFailed(uid string, err error)

	// A save failed. attempts counts consecutive failures for uid; teardown
	// reports with final=true.
	SaveFailed(uid string, err error, attempts int, final bool)

	// Resident units exceed capacity because every eviction candidate is dirty
	// and could not be saved.
	CapacityExceeded(resident, capacity int, unsaved []string)

	// A unit was saved (if dirty), released, and dropped from the cache.
	Evicted(uid string)

	// A load finished after its case was invalidated; the unit was released.
	StaleLoadDiscarded(uid string)
}

// CaseEvent is the case-changed notification.
type CaseEvent struct {
	UID   string
	Index int
	Total int
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CaseChanged(CaseEvent)               {}
func (NopHooks) CaseSkipped(string, int)             {}
func (NopHooks) LoadFailed(string, error)            {}
func (NopHooks) SaveFailed(string, error, int, bool) {}
func (NopHooks) CapacityExceeded(int, int, []string) {}
func (NopHooks) Evicted(string)                      {}
func (NopHooks) StaleLoadDiscarded(string)           {}
