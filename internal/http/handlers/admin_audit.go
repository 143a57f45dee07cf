package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/chatline/internal/audit"
	"github.com/chatline/chatline/pkg/logging"
)

// AdminAuditHandler exposes the audit trail to the admin frontend.
type AdminAuditHandler struct {
	audits *audit.Service
	logger *logging.Logger
}

// NewAdminAuditHandler creates a new audit query handler.
func NewAdminAuditHandler(audits *audit.Service, logger *logging.Logger) *AdminAuditHandler {
	if audits == nil {
		panic("handlers: audit service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAuditHandler{audits: audits, logger: logger}
}

// ListEvents returns filtered audit events for a tenant.
// GET /admin/tenants/{tenantID}/audit-events
func (h *AdminAuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}

	filter := audit.Filter{TenantID: tenantID, Limit: 100}
	q := r.URL.Query()
	if v := q.Get("ticket_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.TicketID = id
		}
	}
	filter.EventType = audit.EventType(q.Get("event_type"))
	if v := q.Get("event_types"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.EventTypes = append(filter.EventTypes, audit.EventType(part))
			}
		}
	}
	if v := q.Get("start"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = ts
		}
	}
	if v := q.Get("end"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = ts
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	events, err := h.audits.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err, "tenant_id", tenantID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"events": events, "count": len(events)}); err != nil {
		h.logger.Error("failed to encode audit response", "error", err)
	}
}
