// Package greeting sends the tenant's automatic welcome message when a
// contact writes in. Sends are debounced so a burst of messages from the
// same conversation produces a single greeting, and a recency map keeps the
// greeting from repeating within its cooldown window.
package greeting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatline/chatline/internal/settings"
	"github.com/chatline/chatline/pkg/logging"
)

const (
	defaultDebounce   = time.Second
	defaultRecencyTTL = 5 * time.Minute
	recencyMaxEntries = 4096
	outboundWindow    = 5 * time.Minute
)

// Outbound is a greeting ready to be delivered to a contact.
type Outbound struct {
	TenantID  int64
	LineID    string
	TicketID  int64
	Number    string
	Body      string
	MediaPath string
}

// Sender delivers greetings to the messaging line.
type Sender interface {
	Send(ctx context.Context, out Outbound) error
}

// LineInfo reports whether a line routes tickets through queues. Lines
// with queues run their own flows, so the plain greeting stays out of the
// way.
type LineInfo interface {
	LineHasQueues(ctx context.Context, tenantID int64, lineID string) (bool, error)
}

// OutboundHistory reports whether an agent already replied recently.
type OutboundHistory interface {
	HasRecentOutbound(ctx context.Context, tenantID, ticketID int64, window time.Duration) (bool, error)
}

// AuditTrail records delivered greetings. Failures never block the send.
type AuditTrail interface {
	LogGreetingSent(ctx context.Context, tenantID, ticketID int64, number string) error
}

// Request carries the facts about an inbound message that the greeting
// gates need.
type Request struct {
	TenantID      int64
	LineID        string
	TicketID      int64
	TicketUserID  *int64
	ContactNumber string
	FromMe        bool
	IsGroup       bool
	Settings      *settings.TenantSettings
}

// Service decides whether to greet and schedules the debounced send.
type Service struct {
	sender  Sender
	lines   LineInfo
	history OutboundHistory
	audits  AuditTrail
	logger  *logging.Logger

	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	recent *recencyMap
}

// Option is a functional option for configuring the Service.
type Option func(*Service)

// WithDebounce overrides the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) { s.debounce = d }
}

// WithRecencyTTL overrides how long a conversation stays greeted.
func WithRecencyTTL(ttl time.Duration) Option {
	return func(s *Service) { s.recent = newRecencyMap(ttl, recencyMaxEntries) }
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAudit attaches the audit trail.
func WithAudit(a AuditTrail) Option {
	return func(s *Service) { s.audits = a }
}

// NewService creates a greeting service.
func NewService(sender Sender, lines LineInfo, history OutboundHistory, opts ...Option) *Service {
	if sender == nil {
		panic("greeting: sender is required")
	}
	if lines == nil {
		panic("greeting: line info is required")
	}
	if history == nil {
		panic("greeting: outbound history is required")
	}
	s := &Service{
		sender:   sender,
		lines:    lines,
		history:  history,
		logger:   logging.Default(),
		debounce: defaultDebounce,
		timers:   make(map[string]*time.Timer),
		recent:   newRecencyMap(defaultRecencyTTL, recencyMaxEntries),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consider runs the synchronous gates and, when they pass, schedules the
// greeting. A later Consider for the same conversation within the debounce
// window restarts the timer, so only the last call fires.
func (s *Service) Consider(req Request) {
	if !s.eligible(req) {
		return
	}

	key := fmt.Sprintf("%d:%d", req.TenantID, req.TicketID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		s.fire(key, req)
	})
}

func (s *Service) eligible(req Request) bool {
	if req.FromMe {
		return false
	}
	if req.TicketUserID != nil {
		// An assigned agent owns the conversation.
		return false
	}
	st := req.Settings
	if st == nil || st.GreetingMessage == "" {
		return false
	}
	if req.IsGroup {
		// Groups get the greeting only by explicit allow-list entry.
		return st.GreetingListed(req.ContactNumber)
	}
	return st.GreetingAllowed(req.ContactNumber)
}

// fire runs after the debounce. The async gates run here so they see the
// state at send time, not at enqueue time.
func (s *Service) fire(key string, req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	hasQueues, err := s.lines.LineHasQueues(ctx, req.TenantID, req.LineID)
	if err != nil {
		s.logger.Warn("greeting queue lookup failed", "error", err, "tenant_id", req.TenantID, "line_id", req.LineID)
		return
	}
	if hasQueues {
		return
	}

	replied, err := s.history.HasRecentOutbound(ctx, req.TenantID, req.TicketID, outboundWindow)
	if err != nil {
		s.logger.Warn("greeting outbound lookup failed", "error", err, "tenant_id", req.TenantID, "ticket_id", req.TicketID)
		return
	}
	if replied {
		return
	}

	if s.recent.Touch(key) {
		return
	}

	out := Outbound{
		TenantID:  req.TenantID,
		LineID:    req.LineID,
		TicketID:  req.TicketID,
		Number:    req.ContactNumber,
		Body:      req.Settings.GreetingMessage,
		MediaPath: req.Settings.GreetingMediaPath,
	}
	if err := s.sender.Send(ctx, out); err != nil {
		s.logger.Error("greeting send failed", "error", err, "tenant_id", req.TenantID, "ticket_id", req.TicketID)
		return
	}
	if s.audits != nil {
		if err := s.audits.LogGreetingSent(ctx, req.TenantID, req.TicketID, req.ContactNumber); err != nil {
			s.logger.Warn("audit write failed for greeting", "error", err, "ticket_id", req.TicketID)
		}
	}
}
