package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/licensing-backend/internal/bootstrap"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/registry"
	"github.com/angelmondragon/licensing-backend/pkg/pubsub"
)

func main() {
	proc, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "outbox-publisher"})
	if err != nil {
		bootstrap.Fail(context.Background(), nil, "outbox publisher failed to start", err)
	}
	logg := proc.Logger

	ctx, stop := proc.SignalContext(nil)
	if err := run(ctx, proc); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		proc.Close()
		bootstrap.Fail(ctx, logg, "outbox publisher stopped unexpectedly", err)
	}
	stop()
	proc.Close()
	logg.Info(ctx, "outbox publisher shut down")
}

func run(ctx context.Context, proc *bootstrap.Process) error {
	cfg := proc.Config

	topics, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, proc.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			proc.Logger.Error(ctx, "pubsub close failed", err)
		}
	}()

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        proc.Logger,
		DB:            proc.DB,
		PubSub:        client,
		Repository:    outbox.NewRepository(proc.DB.DB()),
		Registry:      topics,
		DLQRepository: outbox.NewDLQRepository(),
		Metrics:       metrics.NewOutboxMetrics(proc.Registry),
	})
	if err != nil {
		return err
	}

	defer proc.ServeMetrics(ctx)()
	proc.Logger.Info(ctx, "outbox publisher started")
	return service.Run(ctx)
}
