package gocache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p := New(Config{})
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss")
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 0, 0); !ok || err != nil {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	b, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(b, []byte("v")) {
		t.Fatalf("Get: %q ok=%v err=%v", b, ok, err)
	}
	_ = p.Del(ctx, "k")
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after Del")
	}
}

func TestPerEntryTTL(t *testing.T) {
	ctx := context.Background()
	p := New(Config{DefaultTTL: time.Hour})
	t.Cleanup(func() { _ = p.Close(ctx) })

	_, _ = p.Set(ctx, "short", []byte("x"), 0, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "short"); ok {
		t.Fatalf("entry should have expired")
	}
}
