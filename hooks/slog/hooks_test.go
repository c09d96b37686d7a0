package sloghook

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestFinalSaveFailureEscalates(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})

	h.SaveFailed("p1", errors.New("disk full"), 1, false)
	h.SaveFailed("p1", errors.New("disk full"), 2, true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%q", lines)
	}
	if !strings.Contains(lines[0], "level=WARN") || !strings.Contains(lines[1], "level=ERROR") {
		t.Fatalf("levels not escalated: %q", lines)
	}
}

func TestBlobKeysAreRedacted(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.BlobSetRejected("caseflow:blob:/secret/patient/t1.nii", 10)
	if strings.Contains(buf.String(), "patient") {
		t.Fatalf("key leaked: %s", buf.String())
	}
}

func TestSelfHealSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{SelfHealEvery: 3})
	for i := 0; i < 9; i++ {
		h.BlobSelfHeal("k", "gen_mismatch")
	}
	if n := strings.Count(buf.String(), "blob_self_heal"); n != 3 {
		t.Fatalf("logged %d self-heals, want 3", n)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.LoadFailed("p1", errors.New("x"))
	h.BlobInvalidateOutage("p", errors.New("a"), errors.New("b"))
}
