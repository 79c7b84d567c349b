package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresStore reads tenant documents from the tenants table:
//
//	CREATE TABLE tenants (id text PRIMARY KEY, doc jsonb NOT NULL);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Resolve(ctx context.Context, tenantID string) (Profile, error) {
	if s.db == nil {
		return Profile{}, errors.New("tenant: db is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Profile{}, ErrNotFound
	}

	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM tenants WHERE id = $1`, tenantID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("tenant: query %s: %w", tenantID, err)
	}
	return ProfileFromDocument(tenantID, doc)
}
