// Package memstore is the default in-process result store. Entries are
// replaced atomically as whole units and never evicted; eviction is implicit
// replacement on recompute.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/ethpandaops/xatu-dashboard/internal/cache"
)

type Store struct {
	mu sync.RWMutex
	m  map[string]cache.Entry
}

var _ cache.Store = (*Store)(nil)

func New() *Store {
	return &Store{m: make(map[string]cache.Entry)}
}

func (s *Store) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	return e, ok, nil
}

func (s *Store) Set(_ context.Context, key string, e cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = e
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

func (s *Store) DelPrefix(_ context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
