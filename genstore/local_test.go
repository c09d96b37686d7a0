package genstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalBumpAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(LocalOptions{})
	t.Cleanup(func() { _ = s.Close(ctx) })

	if g, _ := s.Snapshot(ctx, "case:p1"); g != 0 {
		t.Fatalf("missing key gen=%d want 0", g)
	}
	for i := 1; i <= 2; i++ {
		g, err := s.Bump(ctx, "case:p1")
		if err != nil || g != uint64(i) {
			t.Fatalf("Bump #%d = %d, %v", i, g, err)
		}
	}

	got, err := s.SnapshotMany(ctx, []string{"case:p1", "case:p2"})
	if err != nil {
		t.Fatal(err)
	}
	if got["case:p1"] != 2 || got["case:p2"] != 0 || len(got) != 2 {
		t.Fatalf("SnapshotMany=%v", got)
	}
}

func TestLocalConcurrentBumpsAreCounted(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(LocalOptions{})
	t.Cleanup(func() { _ = s.Close(ctx) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Bump(ctx, "k")
		}()
	}
	wg.Wait()
	if g, _ := s.Snapshot(ctx, "k"); g != 50 {
		t.Fatalf("gen=%d want 50", g)
	}
}

func TestLocalPrune(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(LocalOptions{})
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Bump(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := s.Bump(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}
	s.Prune(20 * time.Millisecond)

	if s.Len() != 1 {
		t.Fatalf("len=%d want 1", s.Len())
	}
	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("pruned key gen=%d want 0", g)
	}
}

func TestLocalCloseStopsSweeper(t *testing.T) {
	s := NewLocal(LocalOptions{SweepEvery: time.Millisecond, Retention: time.Hour})
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
