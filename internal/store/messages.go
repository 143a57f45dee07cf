package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// MessageRecord is the canonical persisted form of a protocol message. The
// wire identifier doubles as the idempotency key within a tenant; once
// created, ID and TicketID never change.
type MessageRecord struct {
	ID          string
	TenantID    int64
	TicketID    int64
	ContactID   *int64
	Body        *string
	Kind        string
	FromMe      bool
	Read        bool
	Ack         int
	MediaPath   *string
	MediaKind   *string
	QuotedMsgID *string
	RemoteJID   string
	Participant string
	Raw         []byte
	IsEdited    bool
	IsDeleted   bool
	CreatedAt   time.Time
}

// MessageStore persists messages and their edit-history shadow.
type MessageStore struct {
	pool PgxPool
}

func NewMessageStore(pool PgxPool) *MessageStore {
	if pool == nil {
		panic("store: pgx pool cannot be nil")
	}
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

const messageColumns = `id, tenant_id, ticket_id, contact_id, body, kind, from_me, read, ack,
		media_path, media_kind, quoted_msg_id, remote_jid, participant, raw, is_edited, is_deleted, created_at`

// GetByID looks a message up by its wire identifier within a tenant.
func (s *MessageStore) GetByID(ctx context.Context, tenantID int64, id string) (*MessageRecord, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE tenant_id = $1 AND id = $2
	`
	rec, err := scanMessage(s.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get message: %w", err)
	}
	return rec, nil
}

// Insert creates the canonical record on first sighting of an identifier.
func (s *MessageStore) Insert(ctx context.Context, q Querier, rec MessageRecord) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO messages (
			id, tenant_id, ticket_id, contact_id, body, kind, from_me, read, ack,
			media_path, media_kind, quoted_msg_id, remote_jid, participant, raw, is_edited, is_deleted
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`
	_, err := q.Exec(ctx, query,
		rec.ID, rec.TenantID, rec.TicketID, rec.ContactID, rec.Body, rec.Kind, rec.FromMe, rec.Read, rec.Ack,
		rec.MediaPath, rec.MediaKind, rec.QuotedMsgID, rec.RemoteJID, rec.Participant, rec.Raw, rec.IsEdited, rec.IsDeleted)
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

// UpdateDelivery is the replay/update branch: only mutable fields change.
// The ack is monotonic so a late low-status receipt cannot downgrade a
// message already marked read.
func (s *MessageStore) UpdateDelivery(ctx context.Context, q Querier, tenantID int64, id string, ack int, participant string, raw []byte) error {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE messages
		SET ack = GREATEST(ack, $3),
			participant = COALESCE(NULLIF($4, ''), participant),
			raw = COALESCE($5, raw)
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := q.Exec(ctx, query, tenantID, id, ack, participant, raw)
	if err != nil {
		return fmt.Errorf("store: update message delivery: %w", err)
	}
	return nil
}

// ApplyEdit overwrites the body of an edited message and flags it.
func (s *MessageStore) ApplyEdit(ctx context.Context, q Querier, tenantID int64, id string, body string) error {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE messages
		SET body = $3, is_edited = TRUE
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := q.Exec(ctx, query, tenantID, id, body)
	if err != nil {
		return fmt.Errorf("store: apply message edit: %w", err)
	}
	return nil
}

// MarkRevoked replaces a revoked message's rendering without deleting it.
func (s *MessageStore) MarkRevoked(ctx context.Context, q Querier, tenantID int64, id string) error {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE messages
		SET is_deleted = TRUE
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := q.Exec(ctx, query, tenantID, id)
	if err != nil {
		return fmt.Errorf("store: mark message revoked: %w", err)
	}
	return nil
}

// UpsertOldMessage captures the pre-edit body in the edit-history shadow
// table before the live record is overwritten.
func (s *MessageStore) UpsertOldMessage(ctx context.Context, q Querier, tenantID int64, messageID string, ticketID int64, previousBody *string) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO old_messages (tenant_id, message_id, ticket_id, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, message_id) DO UPDATE
		SET body = EXCLUDED.body,
			ticket_id = EXCLUDED.ticket_id,
			updated_at = now()
	`
	_, err := q.Exec(ctx, query, tenantID, messageID, ticketID, previousBody)
	if err != nil {
		return fmt.Errorf("store: upsert old message: %w", err)
	}
	return nil
}

// HasRecentOutbound reports whether any self-sent message exists on the
// ticket within the window. Used for greeting suppression.
func (s *MessageStore) HasRecentOutbound(ctx context.Context, tenantID, ticketID int64, within time.Duration) (bool, error) {
	query := `
		SELECT 1 FROM messages
		WHERE tenant_id = $1 AND ticket_id = $2
			AND from_me = TRUE
			AND created_at >= now() - make_interval(secs => $3)
		LIMIT 1
	`
	var exists int
	if err := s.pool.QueryRow(ctx, query, tenantID, ticketID, within.Seconds()).Scan(&exists); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("store: check recent outbound: %w", err)
	}
	return true, nil
}

func scanMessage(row pgx.Row) (*MessageRecord, error) {
	var rec MessageRecord
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.TicketID, &rec.ContactID, &rec.Body, &rec.Kind, &rec.FromMe, &rec.Read, &rec.Ack,
		&rec.MediaPath, &rec.MediaKind, &rec.QuotedMsgID, &rec.RemoteJID, &rec.Participant, &rec.Raw, &rec.IsEdited, &rec.IsDeleted, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
