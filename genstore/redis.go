package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores generations as integer keys "<prefix>:gen:<key>".
// With a TTL, expired counters read as 0.
type Redis struct {
	rdb         redis.UniversalClient
	prefix      string
	ttl         time.Duration
	closeClient bool
}

var _ Store = (*Redis)(nil)

type RedisOptions struct {
	Prefix      string        // "" => "caseflow"
	TTL         time.Duration // 0 => no expiry
	CloseClient bool          // Close also closes the client
}

func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	p := opts.Prefix
	if p == "" {
		p = "caseflow"
	}
	return &Redis{rdb: client, prefix: p, ttl: opts.TTL, closeClient: opts.CloseClient}
}

func (s *Redis) key(k string) string { return s.prefix + ":gen:" + k }

func (s *Redis) Snapshot(ctx context.Context, key string) (uint64, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("genstore: snapshot %q: %w", key, err)
	}
	return v, nil
}

func (s *Redis) SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, rk...).Result()
	if err != nil {
		return nil, fmt.Errorf("genstore: snapshot %d keys: %w", len(keys), err)
	}
	for i, v := range vals {
		if v == nil {
			out[keys[i]] = 0
			continue
		}
		g, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("genstore: parse %q: %w", keys[i], err)
		}
		out[keys[i]] = g
	}
	return out, nil
}

// Bump pipelines INCR and EXPIRE when a TTL is set.
func (s *Redis) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.key(key)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, fmt.Errorf("genstore: bump %q: %w", key, err)
		}
		return uint64(v), nil
	}
	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("genstore: bump %q: %w", key, err)
	}
	return uint64(incr.Val()), nil
}

func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
