// Package sloghook logs caseflow lifecycle and blob cache events with log/slog.
// One *Hooks serves both caseflow.Hooks and blobstore.Hooks.
package sloghook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/caseflow"
	"github.com/unkn0wn-root/caseflow/blobstore"
)

type Options struct {
	// Sampling for noisy events; 0 or 1 logs all.
	SelfHealEvery   uint64
	CaseChangeEvery uint64
	// Redact maps blob storage keys and file paths before logging.
	// Defaults to a SHA-256 prefix. Case uids are logged as-is.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	changeCtr   atomic.Uint64
}

var (
	_ caseflow.Hooks  = (*Hooks)(nil)
	_ blobstore.Hooks = (*Hooks)(nil)
)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

// lifecycle

func (h *Hooks) CaseChanged(ev caseflow.CaseEvent) {
	if h.l == nil || !sample(h.opts.CaseChangeEvery, &h.changeCtr) {
		return
	}
	h.l.Debug("caseflow.case_changed", "uid", ev.UID, "index", ev.Index, "total", ev.Total)
}

func (h *Hooks) CaseSkipped(uid string, index int) {
	if h.l == nil {
		return
	}
	h.l.Info("caseflow.case_skipped", "uid", uid, "index", index)
}

func (h *Hooks) LoadFailed(uid string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("caseflow.load_failed", "uid", uid, "err", err)
}

func (h *Hooks) SaveFailed(uid string, err error, attempts int, final bool) {
	if h.l == nil {
		return
	}
	level := slog.LevelWarn
	if final {
		level = slog.LevelError
	}
	h.l.Log(context.Background(), level, "caseflow.save_failed", "uid", uid, "attempts", attempts, "final", final, "err", err)
}

func (h *Hooks) CapacityExceeded(resident, capacity int, unsaved []string) {
	if h.l == nil {
		return
	}
	h.l.Warn("caseflow.capacity_exceeded", "resident", resident, "capacity", capacity, "unsaved", unsaved)
}

func (h *Hooks) Evicted(uid string) {
	if h.l == nil {
		return
	}
	h.l.Debug("caseflow.evicted", "uid", uid)
}

func (h *Hooks) StaleLoadDiscarded(uid string) {
	if h.l == nil {
		return
	}
	h.l.Info("caseflow.stale_load_discarded", "uid", uid)
}

// blob cache

func (h *Hooks) BlobSelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("caseflow.blob_self_heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) BlobSetRejected(storageKey string, size int) {
	if h.l == nil {
		return
	}
	h.l.Warn("caseflow.blob_set_rejected", "key", h.redact(storageKey), "size", size)
}

func (h *Hooks) BlobGenError(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("caseflow.blob_gen_error", "op", op, "key", h.redact(storageKey), "err", err)
}

func (h *Hooks) BlobInvalidateOutage(path string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("caseflow.blob_invalidate_outage",
		"path", h.redact(path),
		"bump_err", bumpErr,
		"del_err", delErr)
}
