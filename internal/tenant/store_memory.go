package tenant

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Resolver for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemoryStore(profiles ...Profile) *MemoryStore {
	s := &MemoryStore{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

func (s *MemoryStore) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.TenantID] = p.WithDefaults()
}

func (s *MemoryStore) Resolve(_ context.Context, tenantID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[tenantID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}
