package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen     uint64
	touched time.Time
}

// LocalOptions configure pruning of idle counters. Zero values disable pruning.
type LocalOptions struct {
	SweepEvery time.Duration
	Retention  time.Duration
}

// Local is an in-process Store.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localEntry

	stop      chan struct{}
	done      sync.WaitGroup
	closeOnce sync.Once
}

var _ Store = (*Local)(nil)

func NewLocal(opts LocalOptions) *Local {
	s := &Local{gens: make(map[string]localEntry)}
	if opts.SweepEvery <= 0 || opts.Retention <= 0 {
		return s
	}
	s.stop = make(chan struct{})
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		t := time.NewTicker(opts.SweepEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.Prune(opts.Retention)
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

func (s *Local) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[key].gen
	s.mu.RUnlock()
	return g, nil
}

func (s *Local) SnapshotMany(_ context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		out[k] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[key]
	e.gen++
	e.touched = now
	s.gens[key] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Prune drops counters not bumped within retention. A pruned key reads as 0,
// which can only make an older observation look current if that observation was
// taken before the prune and is compared after it; keep retention far above the
// longest load or save.
func (s *Local) Prune(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.gens {
		if e.touched.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Len is the number of tracked keys.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *Local) Close(context.Context) error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.done.Wait()
		}
	})
	return nil
}
