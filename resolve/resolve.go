// Package resolve joins a case's resource references against a data root and
// records whether each file exists. Missing files never fail resolution; whether a
// missing resource matters is decided by the data unit that loads the case.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/unkn0wn-root/caseflow/descriptor"
)

// ErrMissingRequired is returned by Resolution.Require.
var ErrMissingRequired = errors.New("resolve: required resource missing")

// Resolved is a ResourceRef joined against a root path.
type Resolved struct {
	descriptor.ResourceRef
	Abs    string // absolute path; empty when the cell was empty
	Exists bool   // a regular file exists at Abs
}

// Usable reports whether the resource can be loaded.
func (r Resolved) Usable() bool { return r.Abs != "" && r.Exists }

// Resolution is the per-column outcome for one case.
type Resolution map[string]Resolved

// Usable returns usable resources of kind k, sorted by column name.
func (res Resolution) Usable(k descriptor.Kind) []Resolved {
	var out []Resolved
	for _, r := range res {
		if r.Kind == k && r.Usable() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	return out
}

// Missing lists columns that reference a file which does not exist, sorted.
func (res Resolution) Missing() []string {
	var out []string
	for col, r := range res {
		if r.Abs != "" && !r.Exists {
			out = append(out, col)
		}
	}
	sort.Strings(out)
	return out
}

// Require fails when any of kinds has zero usable resources.
func (res Resolution) Require(kinds ...descriptor.Kind) error {
	var lacking []string
	for _, k := range kinds {
		if len(res.Usable(k)) == 0 {
			lacking = append(lacking, k.String())
		}
	}
	if len(lacking) > 0 {
		return fmt.Errorf("%w: no usable %s resource", ErrMissingRequired, strings.Join(lacking, ", "))
	}
	return nil
}

// StatFunc reports file info for a path. It matches os.Stat.
type StatFunc func(name string) (fs.FileInfo, error)

// Resolver resolves case records against a fixed root.
type Resolver struct {
	Root string
	Stat StatFunc // nil => os.Stat
}

func New(root string) *Resolver { return &Resolver{Root: root} }

// Resolve resolves every column of rec. Each column is independent.
func (r *Resolver) Resolve(rec descriptor.CaseRecord) Resolution {
	return resolveWith(rec, r.Root, r.stat())
}

// Resolve resolves rec against root using os.Stat.
func Resolve(rec descriptor.CaseRecord, root string) Resolution {
	return resolveWith(rec, root, os.Stat)
}

func (r *Resolver) stat() StatFunc {
	if r.Stat != nil {
		return r.Stat
	}
	return os.Stat
}

func resolveWith(rec descriptor.CaseRecord, root string, stat StatFunc) Resolution {
	out := make(Resolution, len(rec.Resources))
	for col, ref := range rec.Resources {
		rr := Resolved{ResourceRef: ref}
		if !ref.Empty() {
			rr.Abs = Join(root, ref.Path)
			if fi, err := stat(rr.Abs); err == nil && fi.Mode().IsRegular() {
				rr.Exists = true
			}
		}
		out[col] = rr
	}
	return out
}

// Join returns p unchanged when absolute, otherwise p joined with root.
// A relative root is made absolute against the working directory.
func Join(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	joined := filepath.Join(root, p)
	if abs, err := filepath.Abs(joined); err == nil {
		return abs
	}
	return joined
}
