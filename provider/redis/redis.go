// Package redis stores framed resource bytes in Redis so that several walkers
// over one data root share reads. Volumes are large; MaxValueBytes keeps a
// single case from flooding the server, and DefaultTTL bounds how long an
// unread volume occupies memory.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/caseflow/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

const defaultMaxValue = 64 << 20

type Config struct {
	Client goredis.UniversalClient

	// Prefix namespaces keys on a shared server; "" => none.
	Prefix string

	// DefaultTTL applies when Set is called without a ttl; 0 => no expiry.
	DefaultTTL time.Duration

	// MaxValueBytes rejects larger blobs; 0 => 64 MiB, < 0 => unlimited.
	MaxValueBytes int

	CloseClient bool // the provider owns Client
}

// Redis is a provider.Provider over a go-redis client.
type Redis struct {
	rdb      goredis.UniversalClient
	prefix   string
	ttl      time.Duration
	maxValue int
	owns     bool
}

var _ provider.Provider = (*Redis)(nil)

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	limit := cfg.MaxValueBytes
	if limit == 0 {
		limit = defaultMaxValue
	}
	return &Redis{
		rdb:      cfg.Client,
		prefix:   cfg.Prefix,
		ttl:      cfg.DefaultTTL,
		maxValue: limit,
		owns:     cfg.CloseClient,
	}, nil
}

func (p *Redis) key(k string) string {
	if p.prefix == "" {
		return k
	}
	return p.prefix + ":" + k
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.key(key)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set ignores cost. Oversized blobs are refused with ok=false so the caller
// reads the file from disk instead.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if p.maxValue > 0 && len(value) > p.maxValue {
		return false, nil
	}
	if ttl <= 0 {
		ttl = p.ttl
	}
	if err := p.rdb.Set(ctx, p.key(key), value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.key(key)).Err()
}

func (p *Redis) Close(context.Context) error {
	if !p.owns {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
