package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo writes to audit_events, which is INSERT-only.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertEvent = `INSERT INTO audit_events
	(id, tenant_id, type, actor_operator_id, actor_role, ip_address, session_id, call_sid, message, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, insertEvent,
		e.ID, e.TenantID, string(e.Type), e.ActorOperatorID, e.ActorRole, e.IPAddress,
		e.SessionID, e.CallSid, e.Message, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
