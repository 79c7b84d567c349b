package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records operator actions against live calls.
// Callers treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogEndCall records an operator forcing a live call to end.
func (s *Service) LogEndCall(ctx context.Context, tenantID, operatorID, role, ip, sessionID, callSid string) error {
	return s.Append(ctx, Event{
		TenantID:        tenantID,
		Type:            EventTypeOperatorEndCall,
		ActorOperatorID: operatorID,
		ActorRole:       role,
		IPAddress:       ip,
		SessionID:       sessionID,
		CallSid:         callSid,
		Message:         "operator ended call",
	})
}

// LogTokenIssued records a development access token being minted.
func (s *Service) LogTokenIssued(ctx context.Context, tenantID, operatorID, role, ip string) error {
	return s.Append(ctx, Event{
		TenantID:        tenantID,
		Type:            EventTypeTokenIssued,
		ActorOperatorID: operatorID,
		ActorRole:       role,
		IPAddress:       ip,
		Message:         "access token issued",
	})
}
