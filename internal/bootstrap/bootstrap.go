// Package bootstrap is the startup sequence shared by the long-running
// binaries: env file, config, logger, database, optional redis, and a
// prometheus registry. Each binary adds its own serving loop on top.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/instance"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/migrate"
	"github.com/angelmondragon/licensing-backend/pkg/redis"
)

const metricsShutdownTimeout = 5 * time.Second

type Options struct {
	Kind string
	// Redis dials the shared redis client. The outbox publisher does without.
	Redis bool
	// RuntimeCollectors adds the Go and process collectors to the registry.
	RuntimeCollectors bool
}

// Process holds what a binary opened on the way up. Close releases it in
// reverse order.
type Process struct {
	Kind     string
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry *prometheus.Registry

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Start runs the shared boot sequence. On error everything opened so far is
// closed again.
func Start(ctx context.Context, opts Options) (_ *Process, err error) {
	if opts.Kind == "" {
		return nil, errors.New("process kind is required")
	}
	logg := logger.New(logger.Options{ServiceName: opts.Kind})
	if loadErr := godotenv.Load(); loadErr != nil {
		logg.Debug(ctx, "no .env file; using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = opts.Kind

	p := &Process{
		Kind:   opts.Kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: opts.Kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
		Registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	if p.DB, err = db.New(ctx, cfg.DB, p.Logger); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	p.onClose("database", p.DB.Close)

	if err = migrate.MaybeRunDev(ctx, cfg, p.Logger, p.DB); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}

	if opts.Redis {
		if p.Redis, err = redis.New(ctx, cfg.Redis, p.Logger); err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		p.onClose("redis", p.Redis.Close)
	}

	if opts.RuntimeCollectors {
		p.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p, nil
}

func (p *Process) onClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

// Close runs the registered closers newest first and logs failures.
func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			p.Logger.Error(p.Logger.WithField(context.Background(), "resource", c.name), "bootstrap.close_failed", err)
		}
	}
	p.closers = nil
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// log fields.
func (p *Process) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
		"instance":    instance.GetID(),
	}
	for k, v := range fields {
		base[k] = v
	}
	return p.Logger.WithFields(ctx, base), stop
}

// ServeMetrics exposes the registry on the app port in the background and
// returns a func that shuts the listener down.
func (p *Process) ServeMetrics(ctx context.Context) (shutdown func()) {
	server := metrics.NewServer(p.Config.App.Port, p.Registry)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.Logger.Error(ctx, "metrics server stopped", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

// Fail logs err and exits with status 1. Deferred closers do not run, so
// callers close the process first when it exists.
func Fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		logg = logger.New(logger.Options{})
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
