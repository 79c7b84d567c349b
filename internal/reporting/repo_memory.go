package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"merxus-voice-bridge/internal/calls"
)

// MemoryRepo is an in-memory reporting repository for tests.
// It enforces tenant isolation on reads.
type MemoryRepo struct {
	mu    sync.Mutex
	Calls []calls.Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(_ context.Context, tenantID string, from, to time.Time) ([]calls.Record, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Record, 0)
	for _, c := range r.Calls {
		if c.TenantID != tenantID {
			continue
		}
		if c.StartedAt.Before(from) || !c.StartedAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
