// Package audit records an immutable operator-facing trail of the pipeline
// decisions that change conversation state.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType represents the type of audited pipeline action.
type EventType string

const (
	// EventTicketReopened is logged when an inbound event reopens a closed ticket.
	EventTicketReopened EventType = "ticket.reopened"
	// EventTicketClosed is logged when the campaign detector closes a ticket.
	EventTicketClosed EventType = "ticket.closed"
	// EventGroupBlocked is logged when the group gate drops an event.
	EventGroupBlocked EventType = "ingest.group_blocked"
	// EventMessageRevoked is logged when a revoke flags a stored message.
	EventMessageRevoked EventType = "message.revoked"
	// EventMessageEdited is logged when an edit rewrites a stored body.
	EventMessageEdited EventType = "message.edited"
	// EventCampaignConfirmed is logged when a reply confirms a campaign shipping.
	EventCampaignConfirmed EventType = "campaign.confirmed"
	// EventGreetingSent is logged when the automatic greeting goes out.
	EventGreetingSent EventType = "greeting.sent"
)

// Event is one immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	TenantID  int64           `json:"tenant_id"`
	TicketID  int64           `json:"ticket_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Details carries event-specific fields.
type Details struct {
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	PreviousBody   string `json:"previous_body,omitempty"`
	RemoteJID      string `json:"remote_jid,omitempty"`
	Number         string `json:"number,omitempty"`
	CampaignID     int64  `json:"campaign_id,omitempty"`
	ShippingID     int64  `json:"shipping_id,omitempty"`
}

// Service handles audit logging.
type Service struct {
	db *sql.DB
}

// NewService creates an audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records one audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, tenant_id, ticket_id, message_id, actor, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.TenantID,
		nullInt64(event.TicketID),
		nullString(event.MessageID),
		nullString(event.Actor),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogTicketReopened records a reopen transition.
func (s *Service) LogTicketReopened(ctx context.Context, tenantID, ticketID int64, messageID string) error {
	details, _ := json.Marshal(Details{PreviousStatus: "closed", NewStatus: "pending"})
	return s.LogEvent(ctx, Event{
		EventType: EventTicketReopened,
		TenantID:  tenantID,
		TicketID:  ticketID,
		MessageID: messageID,
		Details:   details,
	})
}

// LogTicketClosed records a ticket closed by the campaign detector.
func (s *Service) LogTicketClosed(ctx context.Context, tenantID, ticketID int64, messageID string) error {
	details, _ := json.Marshal(Details{NewStatus: "closed"})
	return s.LogEvent(ctx, Event{
		EventType: EventTicketClosed,
		TenantID:  tenantID,
		TicketID:  ticketID,
		MessageID: messageID,
		Details:   details,
	})
}

// LogMessageRevoked records a revoke flagging a stored message.
func (s *Service) LogMessageRevoked(ctx context.Context, tenantID, ticketID int64, messageID string) error {
	return s.LogEvent(ctx, Event{
		EventType: EventMessageRevoked,
		TenantID:  tenantID,
		TicketID:  ticketID,
		MessageID: messageID,
	})
}

// LogGroupBlocked records an event dropped by the group gate.
func (s *Service) LogGroupBlocked(ctx context.Context, tenantID int64, remoteJID string) error {
	details, _ := json.Marshal(Details{RemoteJID: remoteJID})
	return s.LogEvent(ctx, Event{
		EventType: EventGroupBlocked,
		TenantID:  tenantID,
		Details:   details,
	})
}

// LogGreetingSent records a delivered automatic greeting.
func (s *Service) LogGreetingSent(ctx context.Context, tenantID, ticketID int64, number string) error {
	details, _ := json.Marshal(Details{Number: number})
	return s.LogEvent(ctx, Event{
		EventType: EventGreetingSent,
		TenantID:  tenantID,
		TicketID:  ticketID,
		Details:   details,
	})
}

// LogCampaignConfirmed records a confirmed shipping reply.
func (s *Service) LogCampaignConfirmed(ctx context.Context, tenantID, campaignID, shippingID int64) error {
	details, _ := json.Marshal(Details{CampaignID: campaignID, ShippingID: shippingID})
	return s.LogEvent(ctx, Event{
		EventType: EventCampaignConfirmed,
		TenantID:  tenantID,
		Details:   details,
	})
}

// LogMessageEdited records an edit, keeping the pre-edit body.
func (s *Service) LogMessageEdited(ctx context.Context, tenantID, ticketID int64, messageID, previousBody string) error {
	details, _ := json.Marshal(Details{PreviousBody: previousBody})
	return s.LogEvent(ctx, Event{
		EventType: EventMessageEdited,
		TenantID:  tenantID,
		TicketID:  ticketID,
		MessageID: messageID,
		Details:   details,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, tenant_id, ticket_id, message_id, actor, details, created_at
		FROM audit_events
		WHERE tenant_id = $1
	`
	args := []interface{}{filter.TenantID}
	argIdx := 2

	if filter.TicketID > 0 {
		query += fmt.Sprintf(" AND ticket_id = $%d", argIdx)
		args = append(args, filter.TicketID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		args = append(args, pq.Array(types))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ticketID sql.NullInt64
		var messageID, actor sql.NullString
		err := rows.Scan(&e.ID, &e.EventType, &e.TenantID, &ticketID, &messageID, &actor, &e.Details, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.TicketID = ticketID.Int64
		e.MessageID = messageID.String
		e.Actor = actor.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	TenantID  int64
	TicketID  int64
	EventType EventType
	// EventTypes narrows to a set of types when more than one is wanted.
	EventTypes []EventType
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
