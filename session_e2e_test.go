package caseflow_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/unkn0wn-root/caseflow"
	"github.com/unkn0wn-root/caseflow/blobstore"
	"github.com/unkn0wn-root/caseflow/dataunit"
	"github.com/unkn0wn-root/caseflow/dataunit/fileunit"
	"github.com/unkn0wn-root/caseflow/descriptor"
	"github.com/unkn0wn-root/caseflow/provider/gocache"
	"github.com/unkn0wn-root/caseflow/tasks/review"
)

func writeCohort(t *testing.T, dir string, uids ...string) *descriptor.Cohort {
	t.Helper()
	var b strings.Builder
	b.WriteString("uid,volume,segmentation\n")
	for _, u := range uids {
		for _, name := range []string{u + "_t1.nii", u + "_seg.nii"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("data-of-"+name), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		b.WriteString(u + "," + u + "_t1.nii," + u + "_seg.nii\n")
	}
	path := filepath.Join(dir, "cohort.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := descriptor.ParseFile(path, descriptor.Options{})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return c
}

func TestEvictedEditsSurviveReload(t *testing.T) {
	ctx := context.Background()
	data, out := t.TempDir(), t.TempDir()
	cohort := writeCohort(t, data, "p1", "p2")

	blobs := blobstore.New(blobstore.Options{Provider: gocache.New(gocache.Config{})})
	t.Cleanup(func() { _ = blobs.Close(ctx) })

	reg := caseflow.NewRegistry()
	err := review.Register(reg, review.Options{Units: fileunit.Options{
		Blobs:      blobs,
		ResumeRoot: out,
		Identity:   dataunit.Identity{Tool: "caseflow-test", User: "rad1"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	task, err := reg.New(review.Name)
	if err != nil {
		t.Fatal(err)
	}
	rt := task.(*review.Task)

	s, err := caseflow.New(caseflow.Options{
		Cohort:     cohort,
		Task:       task,
		DataRoot:   data,
		OutputRoot: out,
		Capacity:   1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })

	if moved, err := s.Start(ctx); !moved || err != nil {
		t.Fatalf("Start moved=%v err=%v", moved, err)
	}
	if err := rt.Mark(review.Accepted, "clean contour"); err != nil {
		t.Fatal(err)
	}

	// capacity 1: p1 is saved and released before p2 loads
	if moved, err := s.Next(ctx); !moved || err != nil {
		t.Fatalf("Next moved=%v err=%v", moved, err)
	}
	if got := s.Manager().Resident(); !reflect.DeepEqual(got, []string{"p2"}) {
		t.Fatalf("resident=%v", got)
	}
	if _, err := os.Stat(filepath.Join(out, "p1", "p1.provenance.json")); err != nil {
		t.Fatalf("p1 sidecar not written: %v", err)
	}

	if err := s.Goto(ctx, "p1"); err != nil {
		t.Fatalf("Goto p1: %v", err)
	}
	_, u, _ := s.Active()
	if v, ok := review.VerdictOf(u); !ok || v != review.Accepted {
		t.Fatalf("verdict after reload=%q ok=%v", v, ok)
	}
	if u.IsDirty() {
		t.Fatalf("reloaded unit should be clean")
	}
	if got := rt.Seen(); !reflect.DeepEqual(got, []string{"p1", "p2", "p1"}) {
		t.Fatalf("seen=%v", got)
	}

	p, ok := s.Layout()
	if !ok || p.Reference != "volume" {
		t.Fatalf("layout=%+v ok=%v", p, ok)
	}
}
