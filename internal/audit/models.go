package audit

import "time"

// Event is an immutable, append-only audit log record of an operator action.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required so operators of one tenant never see another's trail.
// - actor and ip capture are best-effort; do not block call teardown on audit failures.
type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Type EventType `json:"type" db:"type"`

	ActorOperatorID string `json:"actor_operator_id,omitempty" db:"actor_operator_id"`
	ActorRole       string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP as seen by gin.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	SessionID string `json:"session_id,omitempty" db:"session_id"`
	CallSid   string `json:"call_sid,omitempty" db:"call_sid"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeOperatorEndCall EventType = "operator_end_call"
	EventTypeTokenIssued     EventType = "operator_token_issued"
)
