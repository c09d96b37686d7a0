// Package fileunit is a file-backed data unit.
//
// Each usable resource of a case is read into memory through a blobstore.Store.
// Edits replace resource bytes or set annotations. Save writes every resource
// below the output root using a placeholder pattern and records provenance in a
// sidecar encoded by a codec chosen by name.
//
// Saves are idempotent: files whose content already matches are not rewritten,
// and an unchanged provenance record keeps its sidecar, so saving twice yields
// byte-identical output.
package fileunit

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/unkn0wn-root/caseflow"
	"github.com/unkn0wn-root/caseflow/blobstore"
	"github.com/unkn0wn-root/caseflow/codec"
	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/resolve"
)

// maxSidecar bounds provenance sidecars read back from an output root.
const maxSidecar = 1 << 20

type Options struct {
	Blobs *blobstore.Store // nil => uncached disk reads

	// RequiredKinds fail the load when the case has no usable resource of
	// one of these kinds.
	RequiredKinds []descriptor.Kind

	OutputPattern string // "" => DefaultPattern
	SidecarFormat string // json, cbor, msgpack or protobuf; "" => json

	// ResumeRoot, when set, is searched for outputs of an earlier save. A
	// resource found there is loaded instead of the source file.
	ResumeRoot string

	Identity dataunit.Identity
	Logger   caseflow.Logger  // nil => NopLogger
	Now      func() time.Time // nil => time.Now
}

// Factory loads Units.
type Factory struct {
	opts    Options
	blobs   *blobstore.Store
	sidecar codec.Codec[dataunit.Provenance]
	ext     string
	log     caseflow.Logger
	now     func() time.Time
}

var _ dataunit.Factory = (*Factory)(nil)

func NewFactory(opts Options) (*Factory, error) {
	c, ext, err := codec.Named[dataunit.Provenance](opts.SidecarFormat)
	if err != nil {
		return nil, err
	}
	f := &Factory{
		opts:    opts,
		blobs:   opts.Blobs,
		sidecar: codec.Limit[dataunit.Provenance]{Inner: c, MaxDecode: maxSidecar},
		ext:     ext,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if f.blobs == nil {
		f.blobs = blobstore.New(blobstore.Options{})
	}
	if f.log == nil {
		f.log = caseflow.NopLogger{}
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f, nil
}

// Load reads every usable resource of rec.
func (f *Factory) Load(ctx context.Context, rec descriptor.CaseRecord, res resolve.Resolution) (dataunit.Unit, error) {
	if err := res.Require(f.opts.RequiredKinds...); err != nil {
		return nil, err
	}
	if missing := res.Missing(); len(missing) > 0 {
		f.log.Debug("case has missing resources", caseflow.Fields{"uid": rec.UID, "columns": missing})
	}

	u := &Unit{uid: rec.UID, f: f, annotations: map[string]string{}}
	var paths []string
	for _, col := range rec.Columns() {
		r, ok := res[col]
		if !ok || !r.Usable() {
			continue
		}
		rs := &resource{Resolved: r, from: r.Abs}
		if f.opts.ResumeRoot != "" {
			prev := OutputPath(f.opts.OutputPattern, f.opts.ResumeRoot, rec.UID, col, r.Abs)
			if fi, err := os.Stat(prev); err == nil && fi.Mode().IsRegular() {
				rs.from = prev
			}
		}
		u.resources = append(u.resources, rs)
		paths = append(paths, rs.from)
	}

	data, err := f.blobs.ReadFiles(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("read resources of %q: %w", rec.UID, err)
	}
	for _, rs := range u.resources {
		rs.data = data[rs.from]
	}

	if f.opts.ResumeRoot != "" && len(u.resources) > 0 {
		u.restoreAnnotations(u.sidecarPath(f.opts.ResumeRoot))
	}
	return u, nil
}
