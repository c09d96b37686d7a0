package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedDescriptor = errors.New("descriptor: malformed")
	ErrDuplicateUID        = errors.New("descriptor: duplicate uid")
)

// MalformedError describes why a descriptor cannot be used at all.
type MalformedError struct {
	Source string
	Reason string
	Rows   []int // offending rows, if any
	Err    error // underlying reader error, if any
}

func (e *MalformedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "descriptor %q: malformed: %s", e.Source, e.Reason)
	if len(e.Rows) > 0 {
		fmt.Fprintf(&b, " (rows %s)", joinInts(e.Rows))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MalformedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedDescriptor, e.Err}
	}
	return []error{ErrMalformedDescriptor}
}

// Duplicate is one uid value shared by several rows.
type Duplicate struct {
	UID  string
	Rows []int
}

// DuplicateUIDError lists every duplicated uid with all rows it appears on.
type DuplicateUIDError struct {
	Source     string
	Duplicates []Duplicate
}

func (e *DuplicateUIDError) Error() string {
	parts := make([]string, 0, len(e.Duplicates))
	for _, d := range e.Duplicates {
		parts = append(parts, fmt.Sprintf("%q at rows %s", d.UID, joinInts(d.Rows)))
	}
	return fmt.Sprintf("descriptor %q: duplicate uid values: %s", e.Source, strings.Join(parts, "; "))
}

func (e *DuplicateUIDError) Unwrap() error { return ErrDuplicateUID }

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, ",")
}
