package caseflow

import (
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/genstore"
	"github.com/unkn0wn-root/caseflow/layout"
)

// Options configure a Session.
// Only Cohort and Task are required; others have sensible defaults.
type Options struct {
	// Required
	Cohort *descriptor.Cohort
	Task   Task

	DataRoot   string // root for relative resource paths
	OutputRoot string // "" => DataRoot

	Capacity           int  // resident units including the active one; 0 => 2
	AutoSaveOnNavigate bool // save a dirty case before leaving it

	Orientation layout.Orientation // 0 => Axial
	Horizontal  bool
	Opacity     float64 // foreground opacity; 0 => 0.5

	GenStore genstore.Store // case generations; nil => in-process
	Logger   Logger         // nil => NopLogger
	Hooks    Hooks          // nil => NopHooks
}

// New creates a session over opts.Cohort for opts.Task.
func New(opts Options) (*Session, error) {
	return newSession(opts)
}
