package fileunit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/caseflow"
	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/layout"
	"github.com/unkn0wn-root/caseflow/resolve"
)

var (
	ErrDirty         = errors.New("fileunit: unit has unsaved edits")
	ErrReleased      = errors.New("fileunit: unit released")
	ErrUnknownColumn = errors.New("fileunit: unknown column")
)

type resource struct {
	resolve.Resolved
	from string // file the bytes were read from
	data []byte
}

// Unit holds the bytes of one case's resources plus free-form annotations.
type Unit struct {
	uid string
	f   *Factory

	mu          sync.Mutex
	resources   []*resource // descriptor column order
	annotations map[string]string
	dirty       bool
	focused     bool
	released    bool
}

var (
	_ dataunit.Unit    = (*Unit)(nil)
	_ dataunit.Focuser = (*Unit)(nil)
	_ dataunit.Visual  = (*Unit)(nil)
)

func (u *Unit) UID() string { return u.uid }

func (u *Unit) Validate() dataunit.ValidationResult {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.resources) == 0 {
		return dataunit.Invalid("no usable resources")
	}
	var problems []string
	for _, rs := range u.resources {
		if rs.Kind == descriptor.KindImage && len(rs.data) == 0 {
			problems = append(problems, fmt.Sprintf("image %s is empty", rs.Column))
		}
	}
	if len(problems) > 0 {
		return dataunit.Invalid(problems...)
	}
	return dataunit.Valid()
}

func (u *Unit) MarkDirty() {
	u.mu.Lock()
	u.dirty = true
	u.mu.Unlock()
}

func (u *Unit) IsDirty() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dirty
}

// Columns lists the loaded resource columns.
func (u *Unit) Columns() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.resources))
	for i, rs := range u.resources {
		out[i] = rs.Column
	}
	return out
}

// Bytes returns a copy of a resource's current content.
func (u *Unit) Bytes(column string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	rs := u.lookup(column)
	if rs == nil {
		return nil, false
	}
	return bytes.Clone(rs.data), true
}

// Put replaces a resource's content and marks the unit dirty.
func (u *Unit) Put(column string, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.released {
		return ErrReleased
	}
	rs := u.lookup(column)
	if rs == nil {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	rs.data = bytes.Clone(data)
	u.dirty = true
	return nil
}

// Annotate sets a key in the provenance annotations and marks the unit dirty.
func (u *Unit) Annotate(key, value string) {
	u.mu.Lock()
	u.annotations[key] = value
	u.dirty = true
	u.mu.Unlock()
}

func (u *Unit) Annotation(key string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.annotations[key]
	return v, ok
}

// Save writes resources that differ from what is already on disk below
// outputRoot, then the provenance sidecar. Written files are invalidated in the
// blob cache. The dirty flag is cleared only when everything was written.
func (u *Unit) Save(ctx context.Context, outputRoot string) (dataunit.SaveResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.released {
		return dataunit.SaveResult{}, ErrReleased
	}

	res := dataunit.SaveResult{UID: u.uid, Unchanged: true}
	sources := make(map[string]string, len(u.resources))
	for _, rs := range u.resources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dest := OutputPath(u.f.opts.OutputPattern, outputRoot, u.uid, rs.Column, rs.Abs)
		wrote, err := u.writeIfChanged(ctx, dest, rs.data)
		if err != nil {
			return res, fmt.Errorf("write %s: %w", rs.Column, err)
		}
		if wrote {
			res.Unchanged = false
		}
		res.Files = append(res.Files, dest)
		sources[rs.Column] = rs.Abs
	}

	prov := dataunit.Provenance{
		UID:         u.uid,
		Tool:        u.f.opts.Identity.Tool,
		ToolVersion: u.f.opts.Identity.ToolVersion,
		User:        u.f.opts.Identity.User,
		Sources:     sources,
	}
	if len(u.annotations) > 0 {
		prov.Annotations = maps.Clone(u.annotations)
	}

	res.Sidecar = u.sidecarPath(outputRoot)
	if prev, ok := u.readSidecar(res.Sidecar); ok && res.Unchanged && sameRecord(prev, prov) {
		res.Provenance = prev
	} else {
		prov.ID = uuid.NewString()
		prov.Timestamp = u.f.now().UTC()
		b, err := u.f.sidecar.Encode(prov)
		if err != nil {
			return res, fmt.Errorf("encode provenance: %w", err)
		}
		if err := writeAtomic(res.Sidecar, b); err != nil {
			return res, fmt.Errorf("write provenance: %w", err)
		}
		res.Provenance = prov
		res.Unchanged = false
	}

	u.dirty = false
	u.f.log.Debug("unit saved", caseflow.Fields{"uid": u.uid, "files": len(res.Files), "unchanged": res.Unchanged})
	return res, nil
}

func (u *Unit) writeIfChanged(ctx context.Context, dest string, data []byte) (bool, error) {
	if cur, err := u.f.blobs.ReadFile(ctx, dest); err == nil && bytes.Equal(cur, data) {
		return false, nil
	}
	if err := writeAtomic(dest, data); err != nil {
		return false, err
	}
	if err := u.f.blobs.Invalidate(ctx, dest); err != nil {
		u.f.log.Warn("blob invalidation after write failed", caseflow.Fields{"uid": u.uid, "path": dest, "err": err})
	}
	return true, nil
}

// Release drops the loaded bytes. A dirty unit is kept and ErrDirty returned.
func (u *Unit) Release() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.dirty {
		return ErrDirty
	}
	for _, rs := range u.resources {
		rs.data = nil
	}
	u.released = true
	return nil
}

func (u *Unit) FocusGained() {
	u.mu.Lock()
	u.focused = true
	u.mu.Unlock()
	u.f.log.Debug("unit focused", caseflow.Fields{"uid": u.uid})
}

func (u *Unit) FocusLost() {
	u.mu.Lock()
	u.focused = false
	u.mu.Unlock()
}

func (u *Unit) Focused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.focused
}

// VisualResources exposes image and label columns. The primary is the image
// column flagged primary, else the first image.
func (u *Unit) VisualResources() ([]layout.Resource, *layout.Resource) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var (
		out     []layout.Resource
		primary *layout.Resource
		first   *layout.Resource
	)
	for _, rs := range u.resources {
		if rs.Kind != descriptor.KindImage && rs.Kind != descriptor.KindLabel {
			continue
		}
		r := layout.Resource{Name: rs.Column, Overlay: rs.Kind.Overlay()}
		out = append(out, r)
		if rs.Kind != descriptor.KindImage {
			continue
		}
		if first == nil {
			first = &r
		}
		if rs.Primary && primary == nil {
			primary = &r
		}
	}
	if primary == nil {
		primary = first
	}
	return out, primary
}

func (u *Unit) lookup(column string) *resource {
	for _, rs := range u.resources {
		if rs.Column == column {
			return rs
		}
	}
	return nil
}

// sidecarPath puts the provenance record next to the first saved resource.
func (u *Unit) sidecarPath(root string) string {
	name := u.uid + ".provenance" + u.f.ext
	if len(u.resources) == 0 {
		return filepath.Join(root, u.uid, name)
	}
	first := u.resources[0]
	return filepath.Join(filepath.Dir(OutputPath(u.f.opts.OutputPattern, root, u.uid, first.Column, first.Abs)), name)
}

func (u *Unit) readSidecar(path string) (dataunit.Provenance, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return dataunit.Provenance{}, false
	}
	p, err := u.f.sidecar.Decode(b)
	if err != nil {
		u.f.log.Warn("unreadable provenance sidecar", caseflow.Fields{"uid": u.uid, "path": path, "err": err})
		return dataunit.Provenance{}, false
	}
	return p, true
}

func (u *Unit) restoreAnnotations(path string) {
	if p, ok := u.readSidecar(path); ok {
		maps.Copy(u.annotations, p.Annotations)
	}
}

func sameRecord(a, b dataunit.Provenance) bool {
	return a.UID == b.UID &&
		a.Tool == b.Tool &&
		a.ToolVersion == b.ToolVersion &&
		a.User == b.User &&
		maps.Equal(a.Sources, b.Sources) &&
		maps.Equal(a.Annotations, b.Annotations)
}
