package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ContactRecord identifies the remote party of a conversation.
type ContactRecord struct {
	ID       int64
	TenantID int64
	Name     string
	Number   string
	JID      string
	IsGroup  bool
}

// ContactStore resolves and opportunistically refreshes contacts.
type ContactStore struct {
	pool PgxPool
}

func NewContactStore(pool PgxPool) *ContactStore {
	if pool == nil {
		panic("store: pgx pool cannot be nil")
	}
	return &ContactStore{pool: pool}
}

// GetOrCreateByJID finds the contact for a remote conversation identifier,
// creating it on first contact. A non-empty pushName refreshes a stale or
// number-only display name.
func (s *ContactStore) GetOrCreateByJID(ctx context.Context, tenantID int64, jid, pushName string, isGroup bool) (*ContactRecord, error) {
	number := numberFromJID(jid)
	name := strings.TrimSpace(pushName)
	if name == "" {
		name = number
	}
	query := `
		INSERT INTO contacts (tenant_id, jid, number, name, is_group)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, jid) DO UPDATE
		SET name = CASE
				WHEN EXCLUDED.name <> '' AND EXCLUDED.name <> contacts.number THEN EXCLUDED.name
				ELSE contacts.name
			END,
			updated_at = now()
		RETURNING id, tenant_id, name, number, jid, is_group
	`
	var rec ContactRecord
	err := s.pool.QueryRow(ctx, query, tenantID, jid, number, name, isGroup).
		Scan(&rec.ID, &rec.TenantID, &rec.Name, &rec.Number, &rec.JID, &rec.IsGroup)
	if err != nil {
		return nil, fmt.Errorf("store: get or create contact: %w", err)
	}
	return &rec, nil
}

// GetByID fetches a contact row.
func (s *ContactStore) GetByID(ctx context.Context, tenantID, id int64) (*ContactRecord, error) {
	query := `
		SELECT id, tenant_id, name, number, jid, is_group
		FROM contacts
		WHERE tenant_id = $1 AND id = $2
	`
	var rec ContactRecord
	err := s.pool.QueryRow(ctx, query, tenantID, id).
		Scan(&rec.ID, &rec.TenantID, &rec.Name, &rec.Number, &rec.JID, &rec.IsGroup)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get contact: %w", err)
	}
	return &rec, nil
}

// numberFromJID strips the protocol suffix from a conversation identifier.
func numberFromJID(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		return jid[:idx]
	}
	return jid
}
