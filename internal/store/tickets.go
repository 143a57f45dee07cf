package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Ticket statuses.
const (
	TicketOpen    = "open"
	TicketPending = "pending"
	TicketClosed  = "closed"
)

// TicketRecord is the durable conversation thread between a tenant line and
// a contact.
type TicketRecord struct {
	ID          int64
	TenantID    int64
	LineID      string
	ContactID   int64
	Status      string
	LastMessage string
	UserID      *int64
	QueueID     *int64
	IsGroup     bool
	UpdatedAt   time.Time
}

// EnrichedTicket carries the joined associations the UI needs after a
// media-kind reopen.
type EnrichedTicket struct {
	TicketRecord
	ContactName   string
	ContactNumber string
	QueueName     *string
	UserName      *string
}

// TicketStore mutates ticket status, lastMessage and assignment. Ticket
// creation happens here too so a first-contact message always has a thread
// to land on.
type TicketStore struct {
	pool PgxPool
}

func NewTicketStore(pool PgxPool) *TicketStore {
	if pool == nil {
		panic("store: pgx pool cannot be nil")
	}
	return &TicketStore{pool: pool}
}

const ticketColumns = `id, tenant_id, line_id, contact_id, status, last_message, user_id, queue_id, is_group, updated_at`

func (s *TicketStore) GetByID(ctx context.Context, tenantID, id int64) (*TicketRecord, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE tenant_id = $1 AND id = $2
	`
	rec, err := scanTicket(s.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get ticket: %w", err)
	}
	return rec, nil
}

// FindOrCreate returns the live (non-closed) ticket for a contact on a
// line, or the most recent closed one, creating a fresh pending ticket only
// when none exists at all.
func (s *TicketStore) FindOrCreate(ctx context.Context, tenantID int64, lineID string, contactID int64, isGroup bool) (*TicketRecord, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE tenant_id = $1 AND line_id = $2 AND contact_id = $3
		ORDER BY CASE status WHEN 'open' THEN 0 WHEN 'pending' THEN 1 ELSE 2 END, updated_at DESC
		LIMIT 1
	`
	rec, err := scanTicket(s.pool.QueryRow(ctx, query, tenantID, lineID, contactID))
	if err == nil {
		return rec, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("store: find ticket: %w", err)
	}

	insert := `
		INSERT INTO tickets (tenant_id, line_id, contact_id, status, last_message, is_group)
		VALUES ($1, $2, $3, 'pending', '', $4)
		RETURNING ` + ticketColumns + `
	`
	rec, err = scanTicket(s.pool.QueryRow(ctx, insert, tenantID, lineID, contactID, isGroup))
	if err != nil {
		return nil, fmt.Errorf("store: create ticket: %w", err)
	}
	return rec, nil
}

// Reopen moves a closed ticket to pending. When clearUser is set (plain
// conversational messages) the assignee is also cleared.
func (s *TicketStore) Reopen(ctx context.Context, q Querier, tenantID, id int64, clearUser bool) error {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE tickets
		SET status = 'pending',
			user_id = CASE WHEN $3 THEN NULL ELSE user_id END,
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := q.Exec(ctx, query, tenantID, id, clearUser)
	if err != nil {
		return fmt.Errorf("store: reopen ticket: %w", err)
	}
	return nil
}

// Close terminates a ticket (campaign-confirmation flow).
func (s *TicketStore) Close(ctx context.Context, q Querier, tenantID, id int64) error {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE tickets
		SET status = 'closed', updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := q.Exec(ctx, query, tenantID, id)
	if err != nil {
		return fmt.Errorf("store: close ticket: %w", err)
	}
	return nil
}

// SetLastMessage refreshes the denormalized projection of the most recent
// body or media filename.
func (s *TicketStore) SetLastMessage(ctx context.Context, q Querier, tenantID, id int64, lastMessage string) error {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE tickets
		SET last_message = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := q.Exec(ctx, query, tenantID, id, lastMessage)
	if err != nil {
		return fmt.Errorf("store: set last message: %w", err)
	}
	return nil
}

// LoadEnriched reloads the ticket with its queue/user/contact associations
// joined, for fan-out after media-kind reopens.
func (s *TicketStore) LoadEnriched(ctx context.Context, tenantID, id int64) (*EnrichedTicket, error) {
	query := `
		SELECT t.id, t.tenant_id, t.line_id, t.contact_id, t.status, t.last_message,
			t.user_id, t.queue_id, t.is_group, t.updated_at,
			c.name, c.number, q.name, u.name
		FROM tickets t
		JOIN contacts c ON c.tenant_id = t.tenant_id AND c.id = t.contact_id
		LEFT JOIN queues q ON q.tenant_id = t.tenant_id AND q.id = t.queue_id
		LEFT JOIN users u ON u.tenant_id = t.tenant_id AND u.id = t.user_id
		WHERE t.tenant_id = $1 AND t.id = $2
	`
	var rec EnrichedTicket
	err := s.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&rec.ID, &rec.TenantID, &rec.LineID, &rec.ContactID, &rec.Status, &rec.LastMessage,
		&rec.UserID, &rec.QueueID, &rec.IsGroup, &rec.UpdatedAt,
		&rec.ContactName, &rec.ContactNumber, &rec.QueueName, &rec.UserName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load enriched ticket: %w", err)
	}
	return &rec, nil
}

// LineHasQueues reports whether any routing queue is configured for the
// line; greetings only fire on queue-less lines.
func (s *TicketStore) LineHasQueues(ctx context.Context, tenantID int64, lineID string) (bool, error) {
	query := `
		SELECT 1 FROM line_queues
		WHERE tenant_id = $1 AND line_id = $2
		LIMIT 1
	`
	var exists int
	if err := s.pool.QueryRow(ctx, query, tenantID, lineID).Scan(&exists); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("store: check line queues: %w", err)
	}
	return true, nil
}

func scanTicket(row pgx.Row) (*TicketRecord, error) {
	var rec TicketRecord
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.LineID, &rec.ContactID, &rec.Status, &rec.LastMessage,
		&rec.UserID, &rec.QueueID, &rec.IsGroup, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
