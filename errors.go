package caseflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownUID is returned for a uid that is not in the cohort.
	ErrUnknownUID = errors.New("caseflow: unknown uid")

	ErrLoadFailed       = errors.New("caseflow: load failed")
	ErrValidationFailed = errors.New("caseflow: validation failed")
	ErrSaveFailed       = errors.New("caseflow: save failed")

	// ErrActiveEviction is returned by Evict for the current case.
	ErrActiveEviction = errors.New("caseflow: cannot evict the active case")

	// ErrNoEligibleCase is returned by navigation when every candidate case
	// failed to load.
	ErrNoEligibleCase = errors.New("caseflow: no eligible case")

	ErrNotResident    = errors.New("caseflow: case is not resident")
	ErrSessionClosed  = errors.New("caseflow: session closed")
	ErrNoTask         = errors.New("caseflow: no task")
	ErrDuplicateTask  = errors.New("caseflow: task already registered")
	ErrUnknownTask    = errors.New("caseflow: unknown task")
	ErrInvalidOptions = errors.New("caseflow: invalid options")
)

// LoadError is a case-level load failure.
type LoadError struct {
	UID string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %q: %v", e.UID, e.Err) }

func (e *LoadError) Unwrap() []error { return []error{ErrLoadFailed, e.Err} }

// ValidationError is returned when a freshly loaded unit fails Validate.
type ValidationError struct {
	UID      string
	Problems []string
	Err      error
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("validate %q: %v", e.UID, e.Err)
	}
	return fmt.Sprintf("validate %q: %s", e.UID, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidationFailed}
	}
	return []error{ErrValidationFailed, e.Err}
}

// SaveError is a failed save. The unit stays resident and dirty.
type SaveError struct {
	UID      string
	Attempts int
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %q (attempt %d): %v", e.UID, e.Attempts, e.Err)
}

func (e *SaveError) Unwrap() []error { return []error{ErrSaveFailed, e.Err} }

// TeardownError lists cases whose edits could not be saved when a session
// closed. Their units were not released.
type TeardownError struct {
	Unsaved []string
	Err     error // joined SaveErrors
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("caseflow: %d case(s) left unsaved at teardown: %s",
		len(e.Unsaved), strings.Join(e.Unsaved, ", "))
}

func (e *TeardownError) Unwrap() error { return e.Err }
