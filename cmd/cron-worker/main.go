package main

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/licensing-backend/api/routes"
	"github.com/angelmondragon/licensing-backend/internal/app"
	"github.com/angelmondragon/licensing-backend/internal/bootstrap"
	"github.com/angelmondragon/licensing-backend/internal/cron"
	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
)

const (
	orderTTLInterval  = 30 * time.Minute
	retentionInterval = 24 * time.Hour
)

func main() {
	proc, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "cron-worker", Redis: true})
	if err != nil {
		bootstrap.Fail(context.Background(), nil, "cron worker failed to start", err)
	}
	logg := proc.Logger

	ctx, stop := proc.SignalContext(nil)
	if err := run(ctx, proc); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		proc.Close()
		bootstrap.Fail(ctx, logg, "cron worker stopped unexpectedly", err)
	}
	stop()
	proc.Close()
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, proc *bootstrap.Process) error {
	cfg := proc.Config
	services, err := app.Build(ctx, app.Deps{
		Config:   cfg,
		Logger:   proc.Logger,
		DB:       proc.DB,
		Redis:    proc.Redis,
		Registry: proc.Registry,
	})
	if err != nil {
		return err
	}

	jobs, err := buildJobs(cfg, proc.Logger, outbox.NewRepository(proc.DB.DB()), services)
	if err != nil {
		return err
	}

	// The lease is renewed between jobs, so it only has to outlive one job.
	lock, err := cron.NewLeaseLock(proc.Redis, proc.Redis.LockKey(lockName(cfg.App.Env)), cfg.Renewal.JobTimeout+time.Minute)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     proc.Logger,
		Registry:   cron.NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(proc.Registry),
		JobTimeout: cfg.Renewal.JobTimeout,
	})
	if err != nil {
		return err
	}

	defer proc.ServeMetrics(ctx)()
	proc.Logger.Info(proc.Logger.WithField(ctx, "jobs", len(jobs)), "cron worker started")
	return service.Run(ctx)
}

func buildJobs(cfg *config.Config, logg *logger.Logger, outboxRepo *outbox.Repository, services routes.Services) ([]cron.Job, error) {
	jobs, err := cron.NewLicenseJobs(cron.LicenseJobsParams{
		Logger:          logg,
		Subscriptions:   services.Subscriptions,
		Licenses:        services.Licenses,
		Activations:     services.Activations,
		BatchSize:       cfg.Licensing.SweepBatchSize,
		RenewalInterval: cfg.Renewal.Interval,
		ExpiryInterval:  cfg.Renewal.ExpiryInterval,
		StaleInterval:   cfg.Renewal.StaleInterval,
	})
	if err != nil {
		return nil, err
	}

	orderTTL, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger:   logg,
		Orders:   services.Orders,
		TTL:      cfg.Licensing.OrderPendingTTL,
		Interval: orderTTLInterval,
	})
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Outbox:      outboxRepo,
		MinAttempts: cfg.Outbox.MaxAttempts,
		Interval:    retentionInterval,
	})
	if err != nil {
		return nil, err
	}

	return append(jobs, orderTTL, retention), nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
