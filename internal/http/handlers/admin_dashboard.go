package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/chatline/pkg/logging"
)

// AdminDashboardHandler serves per-tenant operational metrics for the
// admin frontend.
type AdminDashboardHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminDashboardHandler creates a new admin dashboard handler.
func NewAdminDashboardHandler(db *sql.DB, logger *logging.Logger) *AdminDashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDashboardHandler{db: db, logger: logger}
}

// DashboardResponse contains the tenant dashboard metrics.
type DashboardResponse struct {
	TenantID  int64           `json:"tenant_id"`
	Period    string          `json:"period"`
	Tickets   TicketMetrics   `json:"tickets"`
	Messages  MessageMetrics  `json:"messages"`
	Campaigns CampaignMetrics `json:"campaigns"`
}

// TicketMetrics contains ticket state counts.
type TicketMetrics struct {
	Open             int `json:"open"`
	Pending          int `json:"pending"`
	Closed           int `json:"closed"`
	ReopenedThisWeek int `json:"reopened_this_week"`
}

// MessageMetrics contains message volume counts.
type MessageMetrics struct {
	Today    int `json:"today"`
	ThisWeek int `json:"this_week"`
	Inbound  int `json:"inbound"`
	Media    int `json:"media"`
}

// CampaignMetrics contains campaign confirmation counts.
type CampaignMetrics struct {
	PendingConfirmation int `json:"pending_confirmation"`
	ConfirmedThisWeek   int `json:"confirmed_this_week"`
}

// GetDashboard returns the tenant dashboard.
// GET /admin/tenants/{tenantID}/dashboard
func (h *AdminDashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}

	dashboard := DashboardResponse{
		TenantID: tenantID,
		Period:   "week",
	}

	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7)
	today := now.Truncate(24 * time.Hour)

	// Ticket metrics
	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM tickets WHERE tenant_id = $1 AND status = 'open'`, tenantID,
	).Scan(&dashboard.Tickets.Open)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM tickets WHERE tenant_id = $1 AND status = 'pending'`, tenantID,
	).Scan(&dashboard.Tickets.Pending)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM tickets WHERE tenant_id = $1 AND status = 'closed'`, tenantID,
	).Scan(&dashboard.Tickets.Closed)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM audit_events
		 WHERE tenant_id = $1 AND event_type = 'ticket.reopened' AND created_at >= $2`,
		tenantID, weekAgo,
	).Scan(&dashboard.Tickets.ReopenedThisWeek)

	// Message metrics
	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM messages WHERE tenant_id = $1 AND created_at >= $2`, tenantID, today,
	).Scan(&dashboard.Messages.Today)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM messages WHERE tenant_id = $1 AND created_at >= $2`, tenantID, weekAgo,
	).Scan(&dashboard.Messages.ThisWeek)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM messages WHERE tenant_id = $1 AND from_me = false AND created_at >= $2`,
		tenantID, weekAgo,
	).Scan(&dashboard.Messages.Inbound)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM messages WHERE tenant_id = $1 AND media_path IS NOT NULL AND created_at >= $2`,
		tenantID, weekAgo,
	).Scan(&dashboard.Messages.Media)

	// Campaign metrics
	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM campaign_shippings
		 WHERE tenant_id = $1 AND confirmation IS NULL AND confirmation_requested_at IS NOT NULL`, tenantID,
	).Scan(&dashboard.Campaigns.PendingConfirmation)

	h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM campaign_shippings
		 WHERE tenant_id = $1 AND confirmed_at >= $2`, tenantID, weekAgo,
	).Scan(&dashboard.Campaigns.ConfirmedThisWeek)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dashboard); err != nil {
		h.logger.Error("failed to encode dashboard response", "error", err)
	}
}
