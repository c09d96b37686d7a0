package gocache

import (
	"context"
	"time"

	gc "github.com/patrickmn/go-cache"

	"github.com/unkn0wn-root/caseflow/provider"
)

// Provider is a plain in-process map with per-entry expiry. It has no size
// bound; pair it with a short DefaultTTL or use ristretto for large cohorts.
type Provider struct {
	c *gc.Cache
}

var _ provider.Provider = (*Provider)(nil)

type Config struct {
	DefaultTTL      time.Duration // 0 => 10m
	CleanupInterval time.Duration // 0 => 1m
}

func New(cfg Config) *Provider {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	every := cfg.CleanupInterval
	if every <= 0 {
		every = time.Minute
	}
	return &Provider{c: gc.New(ttl, every)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gc.DefaultExpiration
	}
	p.c.Set(key, value, ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

func (p *Provider) Close(context.Context) error {
	p.c.Flush()
	return nil
}
