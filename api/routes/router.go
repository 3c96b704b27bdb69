package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/licensing-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/licensing-backend/api/controllers/webhooks"
	"github.com/angelmondragon/licensing-backend/api/middleware"
	"github.com/angelmondragon/licensing-backend/internal/activations"
	"github.com/angelmondragon/licensing-backend/internal/billingkeys"
	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/internal/orders"
	"github.com/angelmondragon/licensing-backend/internal/plans"
	"github.com/angelmondragon/licensing-backend/internal/products"
	"github.com/angelmondragon/licensing-backend/internal/redeem"
	"github.com/angelmondragon/licensing-backend/internal/subscriptions"
	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/redis"
)

const rateLimitWindow = time.Minute

// redisStore is the slice of the redis client the middleware chain needs.
type redisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Services bundles everything the HTTP surface dispatches to.
type Services struct {
	Products      products.Service
	Plans         plans.Service
	Licenses      licenses.Service
	Activations   activations.Service
	Redeem        redeem.Service
	Orders        orders.Service
	Subscriptions subscriptions.Service
	BillingKeys   billingkeys.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	metricsHandler http.Handler,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Pinger: dbP},
			controllers.ReadinessCheck{Name: "redis", Pinger: redisClient},
		))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	sessionLimit := middleware.NewRateLimitPolicy("session", rateLimitWindow, 0, cfg.Licensing.SessionRateLimitPerMin)
	webhookLimit := middleware.NewRateLimitPolicy("payments-webhook", rateLimitWindow, cfg.Licensing.WebhookRateLimitPerMin, 0)

	// Signed by the payment provider; no bearer token.
	r.With(middleware.RateLimit(webhookLimit, redisClient, logg)).
		Post("/api/v1/webhooks/payments", webhookcontrollers.PaymentWebhook(svc.Orders, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.Idempotency(redisClient, logg),
		)

		r.Get("/plans", controllers.PlanList(svc.Plans, logg))
		r.Get("/plans/{planId}", controllers.PlanDetail(svc.Plans, logg))

		r.Route("/licenses", func(r chi.Router) {
			r.Get("/", controllers.LicenseList(svc.Licenses, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(sessionLimit, redisClient, logg))
				r.Post("/validate", controllers.SessionValidate(svc.Activations, logg))
				r.Post("/validate/force", controllers.SessionForceValidate(svc.Activations, logg))
				r.Post("/heartbeat", controllers.SessionHeartbeat(svc.Activations, logg))
			})

			r.Get("/{licenseId}", controllers.LicenseDetail(svc.Licenses, logg))
			r.Get("/{licenseId}/activations", controllers.ActivationList(svc.Activations, logg))
			r.Post("/{licenseId}/activations", controllers.ActivationCreate(svc.Activations, logg))
			r.Delete("/{licenseId}/activations/{fingerprint}", controllers.ActivationDelete(svc.Activations, logg))
		})

		r.Post("/redeem", controllers.Redeem(svc.Redeem, logg))

		r.Post("/orders", controllers.OrderCreate(svc.Orders, logg))
		r.Get("/orders", controllers.OrderList(svc.Orders, logg))
		r.Get("/orders/{orderId}", controllers.OrderDetail(svc.Orders, logg))

		r.Get("/subscriptions", controllers.SubscriptionList(svc.Subscriptions, logg))
		r.Patch("/subscriptions/{subscriptionId}/auto-renew", controllers.SubscriptionAutoRenew(svc.Subscriptions, logg))
		r.Post("/subscriptions/{subscriptionId}/cancel", controllers.SubscriptionCancel(svc.Subscriptions, logg))

		r.Get("/billing-keys", controllers.BillingKeyList(svc.BillingKeys, logg))
		r.Post("/billing-keys", controllers.BillingKeyRegister(svc.BillingKeys, logg))
		r.Put("/billing-keys/{billingKeyId}/default", controllers.BillingKeySetDefault(svc.BillingKeys, logg))
		r.Delete("/billing-keys/{billingKeyId}", controllers.BillingKeyDelete(svc.BillingKeys, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(logg, "admin"),
			middleware.Idempotency(redisClient, logg),
		)

		r.Get("/products", controllers.AdminProductList(svc.Products, logg))
		r.Post("/products", controllers.AdminProductCreate(svc.Products, logg))
		r.Get("/products/{productId}", controllers.AdminProductDetail(svc.Products, logg))
		r.Put("/products/{productId}/active", controllers.AdminProductSetActive(svc.Products, logg))

		r.Get("/plans", controllers.AdminPlanList(svc.Plans, logg))
		r.Post("/plans", controllers.AdminPlanCreate(svc.Plans, logg))
		r.Get("/plans/{planId}", controllers.AdminPlanDetail(svc.Plans, logg))
		r.Put("/plans/{planId}", controllers.AdminPlanUpdate(svc.Plans, logg))
		r.Put("/plans/{planId}/active", controllers.AdminPlanSetActive(svc.Plans, logg))
		r.Delete("/plans/{planId}", controllers.AdminPlanDelete(svc.Plans, logg))

		r.Post("/licenses", controllers.AdminLicenseIssue(svc.Licenses, logg))
		r.Get("/licenses/{licenseId}", controllers.AdminLicenseDetail(svc.Licenses, logg))
		r.Post("/licenses/{licenseId}/{action}", controllers.AdminLicenseTransition(svc.Licenses, logg))

		r.Route("/redeem", func(r chi.Router) {
			r.Get("/campaigns", controllers.AdminCampaignList(svc.Redeem, logg))
			r.Post("/campaigns", controllers.AdminCampaignCreate(svc.Redeem, logg))
			r.Get("/campaigns/{campaignId}", controllers.AdminCampaignDetail(svc.Redeem, logg))
			r.Put("/campaigns/{campaignId}", controllers.AdminCampaignUpdate(svc.Redeem, logg))
			r.Post("/campaigns/{campaignId}/pause", controllers.AdminCampaignPause(svc.Redeem, logg))
			r.Post("/campaigns/{campaignId}/resume", controllers.AdminCampaignResume(svc.Redeem, logg))
			r.Post("/campaigns/{campaignId}/end", controllers.AdminCampaignEnd(svc.Redeem, logg))
			r.Get("/campaigns/{campaignId}/codes", controllers.AdminCodeList(svc.Redeem, logg))
			r.Post("/campaigns/{campaignId}/codes", controllers.AdminCodeGenerate(svc.Redeem, logg))
			r.Post("/codes/{codeId}/deactivate", controllers.AdminCodeDeactivate(svc.Redeem, logg))
		})
	})

	return r
}
