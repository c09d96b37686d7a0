package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/layout"
)

func mustLoad(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestMissingFileYieldsDefaultTemplate(t *testing.T) {
	s := mustLoad(t, filepath.Join(t.TempDir(), "caseflow.yaml"))
	if got := s.Template(); got.Task != "review" || got.Capacity != 2 {
		t.Fatalf("template=%+v", got)
	}
	if len(s.Names()) != 0 {
		t.Fatalf("names=%v", s.Names())
	}
}

func TestNewProfileIsCopyOnCustomize(t *testing.T) {
	s := mustLoad(t, filepath.Join(t.TempDir(), "caseflow.yaml"))

	p, err := s.NewProfile("brain")
	if err != nil {
		t.Fatal(err)
	}
	p.Capacity = 5
	p.RequiredKinds = append(p.RequiredKinds, "image")
	p.Extra = map[string]string{"site": "a"}
	if err := s.Put(p); err != nil {
		t.Fatal(err)
	}

	if tpl := s.Template(); tpl.Capacity != 2 || len(tpl.RequiredKinds) != 0 || tpl.Extra != nil {
		t.Fatalf("template changed: %+v", tpl)
	}
	q, _ := s.NewProfile("liver")
	if q.Capacity != 2 {
		t.Fatalf("second profile sees first's edits: %+v", q)
	}

	// mutating a returned copy does not reach the store
	got, _ := s.Get("brain")
	got.Extra["site"] = "b"
	again, _ := s.Get("brain")
	if again.Extra["site"] != "a" {
		t.Fatalf("Get returned shared map")
	}

	if _, err := s.NewProfile("brain"); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "caseflow.yaml")
	s := mustLoad(t, path)
	p, _ := s.NewProfile("brain")
	p.DataRoot = "/data/brain"
	p.RequiredKinds = []string{"image", "label"}
	p.BlobCache = BlobCache{Backend: "gocache", TTL: time.Minute}
	if err := s.Put(p); err != nil {
		t.Fatal(err)
	}
	s.SetLast("brain")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := mustLoad(t, path)
	got, err := r.Get("brain")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip\n got %+v\nwant %+v", got, p)
	}
	if r.Last() != "brain" {
		t.Fatalf("last=%q", r.Last())
	}
	if kinds := got.Kinds(); !reflect.DeepEqual(kinds, []descriptor.Kind{descriptor.KindImage, descriptor.KindLabel}) {
		t.Fatalf("kinds=%v", kinds)
	}
}

func TestVerify(t *testing.T) {
	p := Default()
	p.Name = "bad"
	p.Opacity = 2
	p.Sidecar = "xml"
	p.BlobCache.Backend = "redis"
	err := p.Verify()
	if !errors.Is(err, ErrProfileInvalid) {
		t.Fatalf("expected ErrProfileInvalid, got %v", err)
	}
	if err := Default().Verify(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
	if Default().LayoutOrientation() != layout.Trio {
		t.Fatalf("default orientation")
	}
}
