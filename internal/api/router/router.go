package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chatline/chatline/internal/http/handlers"
	httpmiddleware "github.com/chatline/chatline/internal/http/middleware"
	"github.com/chatline/chatline/internal/realtime"
	"github.com/chatline/chatline/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	EventsWebhook *handlers.EventsWebhookHandler
	MediaFiles    *handlers.MediaFilesHandler
	Health        *handlers.HealthHandler
	Hub           *realtime.Hub

	// Admin surface (optional, enabled when AdminAuthSecret is set)
	Dashboard       *handlers.AdminDashboardHandler
	Audit           *handlers.AdminAuditHandler
	AdminAuthSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests per second the webhook endpoint accepts per source IP.
	// Zero disables rate limiting.
	WebhookRateLimit float64
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Check)
		}
		if cfg.EventsWebhook != nil {
			webhook := public
			if cfg.WebhookRateLimit > 0 {
				webhook = public.With(httpmiddleware.RateLimit(cfg.WebhookRateLimit, int(cfg.WebhookRateLimit)*2))
			}
			webhook.Post("/webhooks/events", cfg.EventsWebhook.HandleEvent)
		}
		if cfg.Hub != nil {
			public.Get("/ws", cfg.Hub.HandleWebSocket)
		}
		if cfg.MediaFiles != nil {
			public.Get("/public/company{tenantID}/{filename}", cfg.MediaFiles.ServeFile)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Admin routes, HMAC JWT protected
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/tenants/{tenantID}", func(tenant chi.Router) {
				if cfg.Dashboard != nil {
					tenant.Get("/dashboard", cfg.Dashboard.GetDashboard)
				}
				if cfg.Audit != nil {
					tenant.Get("/audit-events", cfg.Audit.ListEvents)
				}
			})
		})
	}

	return r
}
