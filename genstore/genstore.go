// Package genstore keeps per-key generation counters.
//
// A generation is observed before slow work (loading a case, reading a resource
// file) and compared afterwards; a Bump in between marks the result stale.
// Missing keys are at generation 0.
package genstore

import "context"

// Store is where generations live. Local is the in-process default; Redis shares
// generations between processes working on the same output root.
type Store interface {
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns an entry for every key, 0 for missing ones.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	Close(ctx context.Context) error
}
