package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/chatline/chatline/internal/protocol"
	"github.com/chatline/chatline/internal/queue"
	"github.com/chatline/chatline/pkg/logging"
)

const maxEventBody = 1 << 20 // 1 MiB

type eventPublisher interface {
	Send(ctx context.Context, body string, opts ...queue.SendOption) error
}

// EventsWebhookHandler accepts raw protocol events pushed by the session
// sidecar and enqueues them for the ingest workers. The handler only
// validates the envelope; all domain processing happens off the request
// path so the sidecar never blocks on our database.
type EventsWebhookHandler struct {
	queue  eventPublisher
	token  string
	logger *logging.Logger
}

// NewEventsWebhookHandler creates a webhook handler publishing to q.
func NewEventsWebhookHandler(q eventPublisher, token string, logger *logging.Logger) *EventsWebhookHandler {
	if q == nil {
		panic("handlers: event queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EventsWebhookHandler{queue: q, token: token, logger: logger}
}

// HandleEvent receives a single protocol event.
func (h *EventsWebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		http.Error(w, "webhook auth disabled", http.StatusServiceUnavailable)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Token")), []byte(h.token)) != 1 {
		h.logger.Warn("webhook delivery with bad token", "remote_ip", r.RemoteAddr)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody+1))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(body) > maxEventBody {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	var ev protocol.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if ev.TenantID <= 0 || ev.Info.ID == "" || ev.Info.RemoteJID == "" {
		http.Error(w, "missing envelope fields", http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.queue.Send(ctx, string(body)); err != nil {
		h.logger.Error("failed to enqueue inbound event",
			"error", err,
			"tenant_id", ev.TenantID,
			"message_id", ev.Info.ID,
		)
		http.Error(w, "enqueue failed", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
