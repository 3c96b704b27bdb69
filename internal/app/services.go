package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/licensing-backend/api/routes"
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
	"github.com/angelmondragon/licensing-backend/pkg/licensetoken"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/redis"
	"github.com/angelmondragon/licensing-backend/pkg/square"
)

// Deps are the process-level clients every binary bootstraps first.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// Build wires repositories and services in dependency order. The api and
// cron-worker binaries share it so both see the same business rules.
func Build(ctx context.Context, deps Deps) (routes.Services, error) {
	var out routes.Services
	if deps.Config == nil || deps.Logger == nil || deps.DB == nil || deps.Redis == nil {
		return out, fmt.Errorf("config, logger, db and redis are required")
	}
	cfg := deps.Config
	logg := deps.Logger
	conn := deps.DB.DB()

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	licensingMetrics := metrics.NewLicensingMetrics(reg)
	emitter := outbox.NewEmitter(outbox.NewRepository(conn), logg)

	productSvc, err := products.NewService(products.NewRepository(conn))
	if err != nil {
		return out, fmt.Errorf("products service: %w", err)
	}
	planSvc, err := plans.NewService(plans.NewRepository(conn), productSvc, deps.DB)
	if err != nil {
		return out, fmt.Errorf("plans service: %w", err)
	}

	licenseSvc, err := licenses.NewService(licenses.ServiceParams{
		Repo:    licenses.NewRepository(conn),
		Plans:   planSvc,
		Outbox:  emitter,
		Tx:      deps.DB,
		Logger:  logg,
		Metrics: licensingMetrics,
	})
	if err != nil {
		return out, fmt.Errorf("licenses service: %w", err)
	}

	tokens, err := licensetoken.NewIssuer(cfg.Licensing)
	if err != nil {
		return out, fmt.Errorf("license token issuer: %w", err)
	}
	activationSvc, err := activations.NewService(activations.ServiceParams{
		Repo:     activations.NewRepository(conn),
		Licenses: licenseSvc,
		Products: productSvc,
		Tokens:   tokens,
		Tx:       deps.DB,
		Logger:   logg,
		Metrics:  licensingMetrics,
	})
	if err != nil {
		return out, fmt.Errorf("activations service: %w", err)
	}

	hasher, err := redeem.NewHasher(cfg.Redeem, cfg.Licensing)
	if err != nil {
		return out, err
	}
	redeemSvc, err := redeem.NewService(redeem.ServiceParams{
		Repo:        redeem.NewRepository(conn),
		Plans:       planSvc,
		Licenses:    licenseSvc,
		Outbox:      emitter,
		Tx:          deps.DB,
		Hasher:      hasher,
		RateLimiter: deps.Redis,
		RateLimit: redeem.RateLimit{
			Limit:  cfg.Redeem.RateLimitPerMin,
			Window: cfg.Redeem.RateLimitWindow,
		},
		Logger:  logg,
		Metrics: licensingMetrics,
	})
	if err != nil {
		return out, fmt.Errorf("redeem service: %w", err)
	}

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return out, fmt.Errorf("square client: %w", err)
	}
	gateway, err := billingkeys.NewSquareGateway(squareClient)
	if err != nil {
		return out, err
	}
	billingKeySvc, err := billingkeys.NewService(billingkeys.ServiceParams{
		Repo:   billingkeys.NewRepository(conn),
		Vault:  squareClient,
		Tx:     deps.DB,
		Logger: logg,
	})
	if err != nil {
		return out, fmt.Errorf("billing keys service: %w", err)
	}

	subscriptionSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:        subscriptions.NewRepository(conn),
		Licenses:    licenseSvc,
		Plans:       planSvc,
		BillingKeys: billingKeySvc,
		Gateway:     gateway,
		Outbox:      emitter,
		Tx:          deps.DB,
		Policy: subscriptions.Policy{
			RetryBudget:    cfg.Renewal.RetryBudget,
			RetryDelay:     cfg.Renewal.RetryDelay,
			PaymentTimeout: cfg.Renewal.PaymentTimeout,
			BatchSize:      cfg.Licensing.SweepBatchSize,
		},
		Logger:  logg,
		Metrics: licensingMetrics,
	})
	if err != nil {
		return out, fmt.Errorf("subscriptions service: %w", err)
	}
	licenseSvc.SetLifecycleHook(subscriptionSvc)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:          orders.NewRepository(conn),
		Plans:         planSvc,
		Licenses:      licenseSvc,
		BillingKeys:   billingKeySvc,
		Subscriptions: subscriptionSvc,
		Outbox:        emitter,
		Tx:            deps.DB,
		WebhookSecret: cfg.Webhooks.PaymentsSecret,
		Logger:        logg,
	})
	if err != nil {
		return out, fmt.Errorf("orders service: %w", err)
	}

	return routes.Services{
		Products:      productSvc,
		Plans:         planSvc,
		Licenses:      licenseSvc,
		Activations:   activationSvc,
		Redeem:        redeemSvc,
		Orders:        orderSvc,
		Subscriptions: subscriptionSvc,
		BillingKeys:   billingKeySvc,
	}, nil
}
