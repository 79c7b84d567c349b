package calls

import "time"

// Record is the persisted summary of one bridged call.
//
// Tenant invariant: TenantID is required on every row.
// Audio is never stored; only counters.
type Record struct {
	SessionID string `json:"session_id" db:"session_id"`
	TenantID  string `json:"tenant_id" db:"tenant_id"`

	// Carrier identifiers; either may be empty if the stream never started.
	CallSid   string `json:"call_sid,omitempty" db:"call_sid"`
	StreamSid string `json:"stream_sid,omitempty" db:"stream_sid"`

	Status    Status `json:"status" db:"status"`
	EndReason string `json:"end_reason,omitempty" db:"end_reason"`

	Counters Counters `json:"counters"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Counters are per-call frame statistics.
type Counters struct {
	ToAI      int64 `json:"to_ai" db:"frames_to_ai"`
	ToCarrier int64 `json:"to_carrier" db:"frames_to_carrier"`
	Dropped   int64 `json:"dropped" db:"frames_dropped"`
	Malformed int64 `json:"malformed" db:"frames_malformed"`
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// EventType labels rows in the append-only call_events log.
type EventType string

const (
	EventStarted EventType = "call.started"
	EventEnded   EventType = "call.ended"
)
