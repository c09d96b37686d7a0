package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/caseflow/genstore"
	"github.com/unkn0wn-root/caseflow/internal/wire"
	pr "github.com/unkn0wn-root/caseflow/provider"
)

type memProvider struct {
	mu     sync.Mutex
	m      map[string][]byte
	delErr error
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = value
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delErr != nil {
		return p.delErr
	}
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *memProvider) put(key string, v []byte) {
	p.mu.Lock()
	p.m[key] = v
	p.mu.Unlock()
}

// brokenGen fails every bump.
type brokenGen struct{ genstore.Store }

func (brokenGen) Bump(context.Context, string) (uint64, error) { return 0, errors.New("gen down") }

type healRec struct {
	NopHooks
	mu      sync.Mutex
	reasons []string
	outages int
}

func (h *healRec) BlobSelfHeal(_, reason string) {
	h.mu.Lock()
	h.reasons = append(h.reasons, reason)
	h.mu.Unlock()
}

func (h *healRec) BlobInvalidateOutage(string, error, error) {
	h.mu.Lock()
	h.outages++
	h.mu.Unlock()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestStore(t *testing.T, p pr.Provider, h Hooks, gen genstore.Store) *Store {
	t.Helper()
	s := New(Options{Namespace: "t", Provider: p, Hooks: h, GenStore: gen})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func mustRead(t *testing.T, s *Store, path string) string {
	t.Helper()
	b, err := s.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(b)
}

func TestDisabledReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.nii")
	writeFile(t, path, "voxels")
	s := newTestStore(t, nil, nil, nil)
	if s.Enabled() {
		t.Fatalf("store without provider should be disabled")
	}
	if got := mustRead(t, s, path); got != "voxels" {
		t.Fatalf("got %q", got)
	}
	if err := s.Invalidate(context.Background(), path); err != nil {
		t.Fatalf("Invalidate on disabled store: %v", err)
	}
}

func TestReadFileServesFromCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.nii")
	writeFile(t, path, "voxels")
	mp := newMemProvider()
	s := newTestStore(t, mp, nil, nil)

	if got := mustRead(t, s, path); got != "voxels" {
		t.Fatalf("miss read %q", got)
	}
	if mp.len() != 1 {
		t.Fatalf("entry not filled")
	}

	// swap the cached payload, keeping gen and fingerprint, to see a hit
	k := s.key(path)
	e, err := wire.Decode(mp.m[k])
	if err != nil {
		t.Fatal(err)
	}
	mp.put(k, wire.Encode(wire.Entry{Gen: e.Gen, Source: e.Source, Payload: []byte("cached")}))
	if got := mustRead(t, s, path); got != "cached" {
		t.Fatalf("expected cache hit, got %q", got)
	}
}

func TestReturnedBytesAreOwnedByCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.nii")
	writeFile(t, path, "labels")
	s := newTestStore(t, newMemProvider(), nil, nil)
	mustRead(t, s, path)

	b, _ := s.ReadFile(context.Background(), path)
	b[0] = 'X'
	if got := mustRead(t, s, path); got != "labels" {
		t.Fatalf("cache aliased caller bytes: %q", got)
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.nii")
	writeFile(t, path, "v1")
	mp := newMemProvider()
	s := newTestStore(t, mp, nil, nil)
	ctx := context.Background()

	mustRead(t, s, path)
	if err := s.Invalidate(ctx, path); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if mp.len() != 0 {
		t.Fatalf("entry should be deleted")
	}
	if g, _ := s.gen.Snapshot(ctx, s.key(path)); g != 1 {
		t.Fatalf("gen=%d want 1", g)
	}
	if got := mustRead(t, s, path); got != "v1" || mp.len() != 1 {
		t.Fatalf("refill failed: %q", got)
	}
}

func TestSelfHeal(t *testing.T) {
	ctx := context.Background()

	t.Run("source_changed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t1.nii")
		writeFile(t, path, "old")
		h := &healRec{}
		s := newTestStore(t, newMemProvider(), h, nil)
		mustRead(t, s, path)

		writeFile(t, path, "rewritten by another tool")
		if got := mustRead(t, s, path); got != "rewritten by another tool" {
			t.Fatalf("got %q", got)
		}
		if len(h.reasons) != 1 || h.reasons[0] != "source_changed" {
			t.Fatalf("reasons=%v", h.reasons)
		}
	})

	t.Run("gen_mismatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t1.nii")
		writeFile(t, path, "data")
		h := &healRec{}
		s := newTestStore(t, newMemProvider(), h, nil)
		mustRead(t, s, path)

		if _, err := s.gen.Bump(ctx, s.key(path)); err != nil {
			t.Fatal(err)
		}
		mustRead(t, s, path)
		if len(h.reasons) != 1 || h.reasons[0] != "gen_mismatch" {
			t.Fatalf("reasons=%v", h.reasons)
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "t1.nii")
		writeFile(t, path, "data")
		h := &healRec{}
		mp := newMemProvider()
		s := newTestStore(t, mp, h, nil)
		mp.put(s.key(path), []byte("not a frame"))

		if got := mustRead(t, s, path); got != "data" {
			t.Fatalf("got %q", got)
		}
		if len(h.reasons) != 1 || h.reasons[0] != "corrupt" {
			t.Fatalf("reasons=%v", h.reasons)
		}
	})
}

func TestOversizedFilesAreNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.nii")
	writeFile(t, path, "0123456789")
	mp := newMemProvider()
	s := New(Options{Provider: mp, MaxEntrySize: 4})
	defer s.Close(context.Background())

	mustRead(t, s, path)
	if mp.len() != 0 {
		t.Fatalf("oversized file was cached")
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.nii"), filepath.Join(dir, "b.nii")
	writeFile(t, a, "A")
	writeFile(t, b, "B")
	mp := newMemProvider()
	s := newTestStore(t, mp, nil, nil)

	got, err := s.ReadFiles(context.Background(), []string{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if string(got[a]) != "A" || string(got[b]) != "B" || mp.len() != 2 {
		t.Fatalf("got=%v entries=%d", got, mp.len())
	}
	if _, err := s.ReadFiles(context.Background(), []string{a, filepath.Join(dir, "missing")}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestInvalidateOutage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.nii")
	writeFile(t, path, "v1")
	mp := newMemProvider()
	mp.delErr = errors.New("provider down")
	local := genstore.NewLocal(genstore.LocalOptions{})
	t.Cleanup(func() { _ = local.Close(context.Background()) })
	h := &healRec{}
	s := newTestStore(t, mp, h, brokenGen{local})

	err := s.Invalidate(context.Background(), path)
	var ie *InvalidateError
	if !errors.As(err, &ie) || ie.BumpErr == nil || ie.DelErr == nil {
		t.Fatalf("expected InvalidateError with both causes, got %v", err)
	}
	if h.outages != 1 {
		t.Fatalf("outage hook calls=%d", h.outages)
	}
}
