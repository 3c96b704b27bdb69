package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/licensing-backend/api/routes"
	"github.com/angelmondragon/licensing-backend/internal/app"
	"github.com/angelmondragon/licensing-backend/internal/bootstrap"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	proc, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "api", Redis: true, RuntimeCollectors: true})
	if err != nil {
		bootstrap.Fail(context.Background(), nil, "api failed to start", err)
	}
	logg := proc.Logger

	ctx, stop := proc.SignalContext(map[string]any{"addr": listenAddr(proc.Config.App.Port)})
	if err := serve(ctx, proc); err != nil {
		stop()
		proc.Close()
		bootstrap.Fail(ctx, logg, "api server stopped unexpectedly", err)
	}
	stop()
	proc.Close()
	logg.Info(ctx, "api server shut down")
}

// listenAddr prefers the platform-injected PORT over the configured one.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + configured
}

func serve(ctx context.Context, proc *bootstrap.Process) error {
	services, err := app.Build(ctx, app.Deps{
		Config:   proc.Config,
		Logger:   proc.Logger,
		DB:       proc.DB,
		Redis:    proc.Redis,
		Registry: proc.Registry,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(
		proc.Config, proc.Logger, proc.DB, proc.Redis,
		promhttp.HandlerFor(proc.Registry, promhttp.HandlerOpts{}),
		metrics.NewHTTPMetrics(proc.Registry),
		services,
	)
	server := &http.Server{
		Addr:              listenAddr(proc.Config.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listenErr := make(chan error, 1)
	go func() {
		proc.Logger.Info(ctx, "api server listening")
		listenErr <- server.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
