package campaign

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/internal/realtime"
	"github.com/chatline/chatline/internal/store"
	"github.com/chatline/chatline/pkg/logging"
)

// maxJitterSeconds is the upper bound on the random delay before a
// re-dispatch job becomes visible.
const maxJitterSeconds = 10

// Broadcaster fans realtime events out to connected agents.
type Broadcaster interface {
	Broadcast(tenantID int64, event string, payload any)
}

type shippingStore interface {
	FindByMessageID(ctx context.Context, tenantID int64, messageID string) (*store.ShippingRecord, error)
	FindPendingByNumber(ctx context.Context, tenantID int64, number string) (*store.ShippingRecord, error)
	Confirm(ctx context.Context, q store.Querier, tenantID, shippingID int64, at time.Time) error
}

type ticketCloser interface {
	Close(ctx context.Context, q store.Querier, tenantID, id int64) error
	LoadEnriched(ctx context.Context, tenantID, id int64) (*store.EnrichedTicket, error)
}

// AuditTrail records campaign decisions. Failures never fail the event.
type AuditTrail interface {
	LogTicketClosed(ctx context.Context, tenantID, ticketID int64, messageID string) error
	LogCampaignConfirmed(ctx context.Context, tenantID, campaignID, shippingID int64) error
}

// Detector recognizes campaign traffic on both directions of the line:
// self-sent bodies carrying the zero-width marker, and inbound replies
// from numbers with an in-flight confirmation request.
type Detector struct {
	shippings   shippingStore
	tickets     ticketCloser
	dispatch    queue.Client
	broadcaster Broadcaster
	audits      AuditTrail
	logger      *logging.Logger

	jitter func() int32
	now    func() time.Time
}

// DetectorOption customizes optional collaborators.
type DetectorOption func(*Detector)

// WithAudit attaches the audit trail.
func WithAudit(a AuditTrail) DetectorOption {
	return func(d *Detector) { d.audits = a }
}

// NewDetector creates a Detector.
func NewDetector(shippings shippingStore, tickets ticketCloser, dispatch queue.Client, broadcaster Broadcaster, logger *logging.Logger, opts ...DetectorOption) *Detector {
	if shippings == nil {
		panic("campaign: shipping store cannot be nil")
	}
	if tickets == nil {
		panic("campaign: ticket store cannot be nil")
	}
	if dispatch == nil {
		panic("campaign: dispatch queue cannot be nil")
	}
	if broadcaster == nil {
		panic("campaign: broadcaster cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Detector{
		shippings:   shippings,
		tickets:     tickets,
		dispatch:    dispatch,
		broadcaster: broadcaster,
		logger:      logger,
		jitter:      func() int32 { return rand.Int31n(maxJitterSeconds + 1) },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleSelfSent inspects an outbound text-bearing event. When the body
// carries the campaign marker and matches a shipping row with a linked
// ticket, the ticket is closed and agents are told to drop it from their
// open lists.
func (d *Detector) HandleSelfSent(ctx context.Context, tenantID int64, messageID, body string) error {
	if !HasMarker(body) {
		return nil
	}

	shipping, err := d.shippings.FindByMessageID(ctx, tenantID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if shipping.TicketID == nil {
		return nil
	}

	ticketID := *shipping.TicketID
	if err := d.tickets.Close(ctx, nil, tenantID, ticketID); err != nil {
		return err
	}
	if d.audits != nil {
		if err := d.audits.LogTicketClosed(ctx, tenantID, ticketID, messageID); err != nil {
			d.logger.Warn("audit write failed for campaign close", "error", err, "ticket_id", ticketID)
		}
	}

	d.broadcaster.Broadcast(tenantID, realtime.EventTicket, realtime.TicketEvent{
		Action:   realtime.ActionDelete,
		TicketID: ticketID,
	})

	enriched, err := d.tickets.LoadEnriched(ctx, tenantID, ticketID)
	if err != nil {
		d.logger.Warn("campaign ticket reload failed after close", "error", err, "tenant_id", tenantID, "ticket_id", ticketID)
		enriched = nil
	}
	d.broadcaster.Broadcast(tenantID, realtime.EventTicket, realtime.TicketEvent{
		Action:   realtime.ActionUpdate,
		Ticket:   enriched,
		TicketID: ticketID,
	})
	return nil
}

// HandleInboundReply checks whether an inbound message answers an
// in-flight campaign confirmation for that number. On match the
// confirmation flips to true (exactly once) and a re-dispatch job is
// enqueued with a randomized delay. An enqueue failure is logged but does
// not roll back the confirmation: the state update is authoritative.
func (d *Detector) HandleInboundReply(ctx context.Context, tenantID int64, number string) error {
	shipping, err := d.shippings.FindPendingByNumber(ctx, tenantID, number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := d.shippings.Confirm(ctx, nil, tenantID, shipping.ID, d.now().UTC()); err != nil {
		return err
	}
	if d.audits != nil {
		if err := d.audits.LogCampaignConfirmed(ctx, tenantID, shipping.CampaignID, shipping.ID); err != nil {
			d.logger.Warn("audit write failed for campaign confirm", "error", err, "shipping_id", shipping.ID)
		}
	}

	job, body, err := encodeJob(Job{
		TenantID:           tenantID,
		CampaignShippingID: shipping.ID,
		CampaignID:         shipping.CampaignID,
	})
	if err != nil {
		d.logger.Error("campaign job encode failed", "error", err, "tenant_id", tenantID, "shipping_id", shipping.ID)
		return nil
	}

	delay := d.jitter()
	if err := d.dispatch.Send(ctx, body, queue.WithDelaySeconds(delay)); err != nil {
		d.logger.Error("campaign re-dispatch enqueue failed",
			"error", err,
			"tenant_id", tenantID,
			"shipping_id", shipping.ID,
			"job_id", job.ID,
		)
		return nil
	}

	d.logger.Info("campaign reply confirmed",
		"tenant_id", tenantID,
		"shipping_id", shipping.ID,
		"campaign_id", shipping.CampaignID,
		"delay_seconds", delay,
	)
	return nil
}
