package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"merxus-voice-bridge/pkg/utils"
)

// PostgresRecorder writes to:
//
//	calls(session_id PK, tenant_id, call_sid, stream_sid, status, end_reason,
//	      frames_to_ai, frames_to_carrier, frames_dropped, frames_malformed,
//	      started_at, ended_at)
//	call_events(session_id, tenant_id, type, created_at)  -- insert-only
type PostgresRecorder struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db, clock: time.Now}
}

func (p *PostgresRecorder) Start(ctx context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	if p.db == nil {
		return errors.New("calls: db is nil")
	}
	return utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO calls (session_id, tenant_id, call_sid, stream_sid, status, started_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id) DO NOTHING`,
			r.SessionID, r.TenantID, r.CallSid, r.StreamSid, string(StatusInProgress), r.StartedAt.UTC())
		if err != nil {
			return fmt.Errorf("calls: insert %s: %w", r.SessionID, err)
		}
		return p.appendEvent(ctx, tx, r, EventStarted)
	})
}

func (p *PostgresRecorder) Finish(ctx context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	if p.db == nil {
		return errors.New("calls: db is nil")
	}
	ended := p.clock().UTC()
	if r.EndedAt != nil {
		ended = r.EndedAt.UTC()
	}
	return utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
UPDATE calls SET call_sid = $2, stream_sid = $3, status = $4, end_reason = $5,
       frames_to_ai = $6, frames_to_carrier = $7, frames_dropped = $8, frames_malformed = $9,
       ended_at = $10
WHERE session_id = $1`,
			r.SessionID, r.CallSid, r.StreamSid, string(r.Status), r.EndReason,
			r.Counters.ToAI, r.Counters.ToCarrier, r.Counters.Dropped, r.Counters.Malformed,
			ended)
		if err != nil {
			return fmt.Errorf("calls: update %s: %w", r.SessionID, err)
		}
		return p.appendEvent(ctx, tx, r, EventEnded)
	})
}

func (p *PostgresRecorder) appendEvent(ctx context.Context, tx *sql.Tx, r Record, t EventType) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO call_events (session_id, tenant_id, type, created_at) VALUES ($1, $2, $3, $4)`,
		r.SessionID, r.TenantID, string(t), p.clock().UTC())
	if err != nil {
		return fmt.Errorf("calls: append %s event: %w", t, err)
	}
	return nil
}
