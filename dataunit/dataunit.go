// Package dataunit defines the contract between the case manager and
// task-supplied case state.
//
// A Unit is the materialized state of exactly one case. The manager depends on
// Unit only; it never inspects concrete implementations. Dirtiness is
// self-reported: IsDirty is the only signal the manager uses to decide whether a
// save must precede eviction.
package dataunit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/layout"
	"github.com/unkn0wn-root/caseflow/resolve"
)

// ErrInvalid is wrapped by ValidationResult.Err.
var ErrInvalid = errors.New("dataunit: invalid state")

// Unit is loaded state for one case.
type Unit interface {
	UID() string

	// Validate is a cheap read-only check run right after load.
	Validate() ValidationResult

	MarkDirty()
	IsDirty() bool

	// Save writes the unit below outputRoot together with a provenance record.
	// Saving an unchanged unit again must produce identical output.
	// A successful save clears the dirty flag.
	Save(ctx context.Context, outputRoot string) (SaveResult, error)

	// Release frees heavyweight resources. It must not discard unsaved edits;
	// implementations return an error when called on a dirty unit.
	Release() error
}

// Factory materializes units. Load must only touch state the returned unit owns
// and must be callable for many cases in any order.
type Factory interface {
	Load(ctx context.Context, rec descriptor.CaseRecord, res resolve.Resolution) (Unit, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, rec descriptor.CaseRecord, res resolve.Resolution) (Unit, error)

func (f FactoryFunc) Load(ctx context.Context, rec descriptor.CaseRecord, res resolve.Resolution) (Unit, error) {
	return f(ctx, rec, res)
}

// Focuser is implemented by units that react to becoming (in)active.
type Focuser interface {
	FocusGained()
	FocusLost()
}

// Visual is implemented by units that expose resources to a display.
// Primary may be nil.
type Visual interface {
	VisualResources() (resources []layout.Resource, primary *layout.Resource)
}

// ValidationResult reports whether loaded state is usable.
type ValidationResult struct {
	OK       bool
	Problems []string
}

func Valid() ValidationResult { return ValidationResult{OK: true} }

func Invalid(problems ...string) ValidationResult {
	return ValidationResult{OK: false, Problems: problems}
}

// Err returns nil when OK, otherwise an error wrapping ErrInvalid.
func (v ValidationResult) Err() error {
	if v.OK {
		return nil
	}
	if len(v.Problems) == 0 {
		return ErrInvalid
	}
	return &invalidError{problems: v.Problems}
}

type invalidError struct{ problems []string }

func (e *invalidError) Error() string {
	return ErrInvalid.Error() + ": " + strings.Join(e.problems, "; ")
}

func (e *invalidError) Unwrap() error { return ErrInvalid }

// SaveResult describes the output of a save.
type SaveResult struct {
	UID        string
	Files      []string // written or already current, absolute
	Sidecar    string   // provenance record path
	Provenance Provenance
	Unchanged  bool // nothing needed writing
}

// Provenance is written next to saved resources.
type Provenance struct {
	ID          string            `json:"id" yaml:"id" cbor:"id" msgpack:"id"`
	UID         string            `json:"uid" yaml:"uid" cbor:"uid" msgpack:"uid"`
	Tool        string            `json:"tool" yaml:"tool" cbor:"tool" msgpack:"tool"`
	ToolVersion string            `json:"tool_version" yaml:"tool_version" cbor:"tool_version" msgpack:"tool_version"`
	User        string            `json:"user" yaml:"user" cbor:"user" msgpack:"user"`
	Timestamp   time.Time         `json:"timestamp" yaml:"timestamp" cbor:"timestamp" msgpack:"timestamp"`
	Sources     map[string]string `json:"sources,omitempty" yaml:"sources,omitempty" cbor:"sources,omitempty" msgpack:"sources,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty" cbor:"annotations,omitempty" msgpack:"annotations,omitempty"`
}

// Identity names the tool and user recorded in provenance.
type Identity struct {
	Tool        string
	ToolVersion string
	User        string
}
