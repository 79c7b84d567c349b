package calls

import (
	"context"
	"errors"
	"sync"
)

var ErrInvalidRecord = errors.New("calls: invalid record")

// Recorder persists call lifecycle records. Callers treat it as best-effort:
// a recorder failure never ends a call.
type Recorder interface {
	Start(ctx context.Context, r Record) error
	Finish(ctx context.Context, r Record) error
}

func validate(r Record) error {
	if r.SessionID == "" || r.TenantID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// MemoryRecorder keeps records in process.
type MemoryRecorder struct {
	mu      sync.Mutex
	records map[string]Record
	events  []EventType
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{records: make(map[string]Record)}
}

func (m *MemoryRecorder) Start(_ context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.SessionID] = r
	m.events = append(m.events, EventStarted)
	return nil
}

func (m *MemoryRecorder) Finish(_ context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.SessionID] = r
	m.events = append(m.events, EventEnded)
	return nil
}

// Get returns the latest record for a session.
func (m *MemoryRecorder) Get(sessionID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[sessionID]
	return r, ok
}

// Events returns the lifecycle events in append order.
func (m *MemoryRecorder) Events() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EventType(nil), m.events...)
}
