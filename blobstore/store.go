// Package blobstore is a read-through cache of resource file bytes.
//
// Entries are framed with the generation observed before the disk read and the
// source file's size and mtime. A read is served from cache only if both still
// match: Invalidate (called after a unit saves over a file) bumps the
// generation, and any out-of-band rewrite changes the fingerprint.
//
// Keys:
//
//	<ns>:blob:<sha256(abs path)[:16 hex]>
//
// CAS pattern (inside ReadFile):
//
//	obs  := gen(k)           // before reading the file
//	data := os.ReadFile(p)
//	set(k, data) iff gen(k) == obs
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/unkn0wn-root/caseflow"
	"github.com/unkn0wn-root/caseflow/genstore"
	"github.com/unkn0wn-root/caseflow/internal/util"
	"github.com/unkn0wn-root/caseflow/internal/wire"
	"github.com/unkn0wn-root/caseflow/provider"
)

const (
	defaultTTL          = 30 * time.Minute
	defaultMaxEntrySize = 256 << 20
)

type Options struct {
	Namespace    string            // "" => "caseflow"
	Provider     provider.Provider // nil => disabled, every read goes to disk
	GenStore     genstore.Store    // nil => genstore.NewLocal
	Logger       caseflow.Logger   // nil => NopLogger
	Hooks        Hooks             // nil => NopHooks
	TTL          time.Duration     // 0 => 30m
	MaxEntrySize int               // bytes; larger files are not cached; 0 => 256 MiB
}

type Store struct {
	ns       string
	provider provider.Provider
	gen      genstore.Store
	ownsGen  bool
	log      caseflow.Logger
	hooks    Hooks
	ttl      time.Duration
	maxEntry int
}

func New(opts Options) *Store {
	s := &Store{
		ns:       opts.Namespace,
		provider: opts.Provider,
		gen:      opts.GenStore,
		log:      opts.Logger,
		hooks:    opts.Hooks,
		ttl:      opts.TTL,
		maxEntry: opts.MaxEntrySize,
	}
	if s.ns == "" {
		s.ns = "caseflow"
	}
	if s.log == nil {
		s.log = caseflow.NopLogger{}
	}
	if s.hooks == nil {
		s.hooks = NopHooks{}
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.maxEntry <= 0 {
		s.maxEntry = defaultMaxEntrySize
	}
	if s.gen == nil {
		s.gen = genstore.NewLocal(genstore.LocalOptions{SweepEvery: time.Hour, Retention: 24 * time.Hour})
		s.ownsGen = true
	}
	return s
}

func (s *Store) Enabled() bool { return s.provider != nil }

func (s *Store) Close(ctx context.Context) error {
	var errs []error
	if s.ownsGen {
		errs = append(errs, s.gen.Close(ctx))
	}
	if s.provider != nil {
		errs = append(errs, s.provider.Close(ctx))
	}
	return errors.Join(errs...)
}

// ReadFile returns the contents of path, from cache when the cached copy is
// current. The returned slice is owned by the caller.
func (s *Store) ReadFile(ctx context.Context, path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("blobstore: %s is not a regular file", path)
	}
	if !s.Enabled() {
		return os.ReadFile(path)
	}

	k := s.key(path)
	fp := fingerprint(fi)
	if b, ok := s.get(ctx, k, fp); ok {
		return b, nil
	}

	obs, genOK := s.snapshotGen(ctx, k)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if genOK {
		s.setWithGen(ctx, k, obs, fp, data)
	}
	return data, nil
}

// ReadFiles reads several files, snapshotting their generations in one call.
// It stops at the first error.
func (s *Store) ReadFiles(ctx context.Context, paths []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(paths))
	if !s.Enabled() {
		for _, p := range paths {
			b, err := s.ReadFile(ctx, p)
			if err != nil {
				return nil, err
			}
			out[p] = b
		}
		return out, nil
	}

	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = s.key(p)
	}
	gens, gensErr := s.gen.SnapshotMany(ctx, keys)
	if gensErr != nil {
		s.hooks.BlobGenError("snapshot", s.ns, gensErr)
		s.log.Warn("blob gen snapshot failed; reading without cache fill", caseflow.Fields{"count": len(paths), "err": gensErr})
	}

	for i, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.Mode().IsRegular() {
			return nil, fmt.Errorf("blobstore: %s is not a regular file", p)
		}
		fp := fingerprint(fi)
		if b, ok := s.get(ctx, keys[i], fp); ok {
			out[p] = b
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if gensErr == nil {
			s.setWithGen(ctx, keys[i], gens[keys[i]], fp, data)
		}
		out[p] = data
	}
	return out, nil
}

// Invalidate marks any cached copy of path stale. Call it after writing path.
func (s *Store) Invalidate(ctx context.Context, path string) error {
	if !s.Enabled() {
		return nil
	}
	k := s.key(path)
	newGen, bumpErr := s.gen.Bump(ctx, k)
	delErr := s.provider.Del(ctx, k)
	if bumpErr != nil {
		s.hooks.BlobGenError("bump", k, bumpErr)
	}
	if bumpErr != nil && delErr != nil {
		s.hooks.BlobInvalidateOutage(path, bumpErr, delErr)
	}
	if bumpErr != nil || delErr != nil {
		return &InvalidateError{Path: path, BumpErr: bumpErr, DelErr: delErr}
	}
	s.log.Debug("invalidated blob (bumped gen + cleared entry)", caseflow.Fields{"path": path, "newGen": newGen})
	return nil
}

func (s *Store) get(ctx context.Context, k string, fp wire.Fingerprint) ([]byte, bool) {
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil {
		s.log.Warn("blob provider get failed; reading from disk", caseflow.Fields{"key": k, "err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	e, err := wire.Decode(raw)
	if err != nil {
		s.heal(ctx, k, "corrupt")
		return nil, false
	}
	cur, genOK := s.snapshotGen(ctx, k)
	if !genOK || e.Gen != cur {
		s.heal(ctx, k, "gen_mismatch")
		return nil, false
	}
	if e.Source != fp {
		s.heal(ctx, k, "source_changed")
		return nil, false
	}
	out := make([]byte, len(e.Payload))
	copy(out, e.Payload)
	return out, true
}

func (s *Store) setWithGen(ctx context.Context, k string, observed uint64, fp wire.Fingerprint, data []byte) {
	if len(data) > s.maxEntry {
		return
	}
	if cur, ok := s.snapshotGen(ctx, k); !ok || cur != observed {
		s.log.Debug("blob fill skipped (gen moved)", caseflow.Fields{"key": k, "obs": observed})
		return
	}
	b := wire.Encode(wire.Entry{Gen: observed, Source: fp, Payload: data})
	ok, err := s.provider.Set(ctx, k, b, int64(len(b)), s.ttl)
	if err != nil {
		s.log.Warn("blob provider set failed", caseflow.Fields{"key": k, "err": err})
		return
	}
	if !ok {
		s.hooks.BlobSetRejected(k, len(b))
	}
}

func (s *Store) heal(ctx context.Context, k, reason string) {
	_ = s.provider.Del(ctx, k)
	s.hooks.BlobSelfHeal(k, reason)
}

// snapshotGen reports ok=false on store errors; callers then neither serve nor
// fill from cache.
func (s *Store) snapshotGen(ctx context.Context, k string) (uint64, bool) {
	g, err := s.gen.Snapshot(ctx, k)
	if err != nil {
		s.hooks.BlobGenError("snapshot", k, err)
		s.log.Warn("blob gen snapshot error", caseflow.Fields{"key": k, "err": err})
		return 0, false
	}
	return g, true
}

func (s *Store) key(path string) string { return util.PathKey(s.ns+":blob", path) }

func fingerprint(fi fs.FileInfo) wire.Fingerprint {
	return wire.Fingerprint{Size: fi.Size(), ModTime: fi.ModTime().UnixNano()}
}
