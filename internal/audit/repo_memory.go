package audit

import (
	"context"
	"errors"
	"sync"
)

var ErrDuplicateEvent = errors.New("audit: duplicate event id")

// MemoryRepo keeps events in insertion order. Like audit_events it refuses a
// second row with the same id.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	ids    map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{ids: make(map[string]struct{})}
}

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[e.ID]; dup {
		return ErrDuplicateEvent
	}
	r.ids[e.ID] = struct{}{}
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything appended so far.
func (r *MemoryRepo) Events() []Event {
	return r.ForTenant("")
}

// ForTenant returns one tenant's events, or all of them when tenantID is empty.
func (r *MemoryRepo) ForTenant(tenantID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if tenantID == "" || e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}
