package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gatepass-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/gatepass-backend/api/controllers/webhooks"
	"github.com/angelmondragon/gatepass-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/gatepass-backend/internal/checkout"
	"github.com/angelmondragon/gatepass-backend/internal/notifications"
	"github.com/angelmondragon/gatepass-backend/internal/tickets"
	"github.com/angelmondragon/gatepass-backend/pkg/config"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

// Store is the redis surface the HTTP layer needs for idempotent replays and
// rate limiting.
type Store interface {
	middleware.ResponseStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Params carries everything the router wires. Ready maps dependency names to
// the pingers probed by /health/ready.
type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	Store         Store
	Ready         map[string]controllers.Pinger
	Metrics       http.Handler
	Checkout      checkoutsvc.Service
	Tickets       tickets.Service
	Events        controllers.EventReader
	Notifications notifications.Service
	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeClient  webhookcontrollers.EventVerifier
	WebhookGuard  webhookcontrollers.EventGuard
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.RequestMeta(),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.HTTP.RateLimitWindow,
		cfg.HTTP.CheckoutIPLimit,
		cfg.HTTP.CheckoutUserLimit,
	)
	scanPolicy := middleware.NewRateLimitPolicy(
		"scan",
		cfg.HTTP.RateLimitWindow,
		0,
		cfg.HTTP.ScanUserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})
	r.Handle("/metrics", metricsHandler)

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeClient, p.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		idempotent := middleware.Idempotency(p.Store, middleware.MutationIdempotency, logg)

		r.With(
			middleware.RateLimit(checkoutPolicy, p.Store, logg),
			middleware.Idempotency(p.Store, middleware.CheckoutIdempotency, logg),
		).
			Post("/checkout", controllers.Checkout(p.Checkout, logg))

		r.Route("/tickets", func(r chi.Router) {
			r.With(
				middleware.RequireRole(logg, enums.UserRoleStaff, enums.UserRoleOrganizer, enums.UserRoleAdmin),
				middleware.RateLimit(scanPolicy, p.Store, logg),
			).Post("/scan", controllers.ScanTicket(p.Tickets, logg))
			r.Post("/verify", controllers.VerifyTicket(p.Tickets, logg))
		})

		r.Get("/orders/{orderId}/tickets", controllers.OrderTickets(p.Tickets, logg))

		r.Route("/events/{eventId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleOrganizer, enums.UserRoleAdmin))
			r.Get("/attendees", controllers.EventAttendees(p.Events, logg))
			r.Get("/orders", controllers.EventOrders(p.Events, logg))
			r.Get("/rsvps/count", controllers.EventRSVPCount(p.Events, logg))
			r.Get("/interests/count", controllers.EventInterestCount(p.Events, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(p.Notifications, logg))
			r.With(idempotent).Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			r.With(idempotent).Post("/orders/{orderId}/read", controllers.MarkOrderNotificationsRead(p.Notifications, logg))
			r.With(idempotent).Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		})
	})

	return r
}
