// Package provider defines the byte store behind the resource blob cache.
//
// Implementations must be byte-for-byte transparent: Get returns exactly the
// bytes passed to Set. The "<ns>:blob:" keyspace is owned by blobstore; foreign
// values there fail wire validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set may ignore cost or ttl when unsupported. ok=false means the store
	// rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	Del(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
