package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrDuplicateSession = errors.New("bridge: session already registered")
	ErrRegistryClosed   = errors.New("bridge: registry closed to new sessions")
)

// Registry is the only cross-call state: the set of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s. Session ids are unique for the life of the session.
// After CloseAll every Add fails with ErrRegistryClosed.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.sessions[s.ID()]; ok {
		return ErrDuplicateSession
	}
	r.sessions[s.ID()] = s
	r.wg.Add(1)
	return nil
}

// Remove drops s if it is still the registered session for its id.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID()]; ok && cur == s {
		delete(r.sessions, s.ID())
		r.wg.Done()
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot lists live sessions, oldest first.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CloseAll stops admitting sessions, begins teardown of every live one and
// returns how many were signalled.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	r.closed = true
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	for _, s := range list {
		s.Close(reason)
	}
	return len(list)
}

// Wait blocks until every registered session has been removed or ctx ends.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
