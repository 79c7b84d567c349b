package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"merxus-voice-bridge/internal/calls"
)

// PostgresRepo reads the calls table written by calls.PostgresRecorder.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const listCalls = `SELECT session_id, tenant_id, COALESCE(call_sid, ''), COALESCE(stream_sid, ''),
	status, COALESCE(end_reason, ''),
	COALESCE(frames_to_ai, 0), COALESCE(frames_to_carrier, 0), COALESCE(frames_dropped, 0), COALESCE(frames_malformed, 0),
	started_at, ended_at
FROM calls
WHERE tenant_id = $1 AND started_at >= $2 AND started_at < $3
ORDER BY started_at`

func (r *PostgresRepo) ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.Record, error) {
	rows, err := r.db.QueryContext(ctx, listCalls, tenantID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("reporting: list calls: %w", err)
	}
	defer rows.Close()

	var out []calls.Record
	for rows.Next() {
		var (
			c      calls.Record
			status string
			ended  sql.NullTime
		)
		if err := rows.Scan(&c.SessionID, &c.TenantID, &c.CallSid, &c.StreamSid, &status, &c.EndReason,
			&c.Counters.ToAI, &c.Counters.ToCarrier, &c.Counters.Dropped, &c.Counters.Malformed,
			&c.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("reporting: scan call: %w", err)
		}
		c.Status = calls.Status(status)
		if ended.Valid {
			t := ended.Time
			c.EndedAt = &t
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reporting: list calls: %w", err)
	}
	return out, nil
}
