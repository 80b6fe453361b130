package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/craftconnect/marketplace-backend/api/controllers"
	ledgercontrollers "github.com/craftconnect/marketplace-backend/api/controllers/ledger"
	webhookcontrollers "github.com/craftconnect/marketplace-backend/api/controllers/webhooks"
	"github.com/craftconnect/marketplace-backend/api/middleware"
	"github.com/craftconnect/marketplace-backend/internal/ledger"
	"github.com/craftconnect/marketplace-backend/internal/reporting"
	"github.com/craftconnect/marketplace-backend/internal/webhooks/payments"
	"github.com/craftconnect/marketplace-backend/pkg/config"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
	"github.com/craftconnect/marketplace-backend/pkg/redis"
	"github.com/craftconnect/marketplace-backend/pkg/stripe"
)

// LedgerService is the ledger surface the admin routes need.
type LedgerService interface {
	ledgercontrollers.RefundService
	ledgercontrollers.TransactionReader
}

type RouterParams struct {
	DB             controllers.Pinger
	Redis          controllers.Pinger
	PubSub         controllers.Pinger // nil unless notifications go straight to Pub/Sub
	Idempotency    redis.IdempotencyStore
	RateLimits     redis.RateLimitStore
	Ledger         LedgerService
	Reports        reporting.Service
	Payments       webhookcontrollers.PaymentEventService
	CallbackGuard  *payments.IdempotencyGuard
	StripeGuard    *payments.IdempotencyGuard
	Stripe         *stripe.Client
	MetricsHandler http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.RateLimit.Window, cfg.RateLimit.WebhookLimit)
	adminPolicy := middleware.NewRateLimitPolicy("admin", cfg.RateLimit.Window, cfg.RateLimit.AdminLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "database", Pinger: p.DB},
			controllers.Dependency{Name: "redis", Pinger: p.Redis},
			controllers.Dependency{Name: "pubsub", Pinger: p.PubSub},
		))
	})

	metricsHandler := p.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping("public"))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, p.RateLimits, logg))
		r.Post("/payments", webhookcontrollers.PaymentCallback(p.Payments, cfg.Gateway.CallbackSecret, p.CallbackGuard, logg))
		if p.Stripe != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(p.Payments, p.Stripe, p.StripeGuard, logg))
		}
	})

	r.Route("/api/v1/seller", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleSeller))
		r.Get("/ping", controllers.Ping("seller"))
		r.Get("/balance", ledgercontrollers.MySellerBalance(p.Reports, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.RateLimit(adminPolicy, p.RateLimits, logg))

		r.Get("/ping", controllers.Ping("admin"))

		r.Route("/reports", func(r chi.Router) {
			r.Get("/dashboard", ledgercontrollers.Dashboard(p.Reports, logg))
			r.Get("/daily", ledgercontrollers.DailyReport(p.Reports, logg))
			r.Get("/sellers", ledgercontrollers.SellerReport(p.Reports, logg))
			r.Get("/categories", ledgercontrollers.CategoryReport(p.Reports, logg))
			r.Get("/payment-methods", ledgercontrollers.PaymentMethodReport(p.Reports, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", ledgercontrollers.ListTransactions(p.Reports, logg))
			r.Get("/{transactionId}", ledgercontrollers.GetTransaction(p.Ledger, logg))
			r.With(middleware.Idempotency(p.Idempotency, logg)).
				Post("/{transactionId}/refunds", ledgercontrollers.CreateRefund(p.Ledger, logg))
		})

		r.Get("/orders/{orderId}/transactions", ledgercontrollers.ListOrderTransactions(p.Ledger, logg))
		r.Get("/sellers/{sellerId}/balance", ledgercontrollers.AdminSellerBalance(p.Reports, logg))
	})

	return r
}

var _ LedgerService = (*ledger.Service)(nil)
