package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
)

const (
	defaultInterval   = 24 * time.Hour
	defaultTick       = time.Minute
	defaultJobTimeout = 10 * time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval applies to jobs that do not implement Scheduled.
	Interval time.Duration
	// Tick is how often the worker looks for due jobs.
	Tick time.Duration
	// JobTimeout bounds a single Run.
	JobTimeout time.Duration
	Now        func() time.Time
}

// Service runs due jobs once per tick while it holds the cluster lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	tick       time.Duration
	jobTimeout time.Duration
	now        func() time.Time
	lastRun    map[string]time.Time
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   orDefault(params.Interval, defaultInterval),
		tick:       orDefault(params.Tick, defaultTick),
		jobTimeout: orDefault(params.JobTimeout, defaultJobTimeout),
		now:        params.Now,
		lastRun:    map[string]time.Time{},
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run executes a cycle immediately, then one per tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) (err error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Debug(ctx, "cron.lock_held_elsewhere")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", relErr)
		}
	}()

	now := s.now()
	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.due(job, now) {
			continue
		}
		s.lastRun[job.Name()] = now
		s.runJob(ctx, job)
		if err := s.renew(ctx); err != nil {
			return err
		}
	}
	return nil
}

// renew extends the lease after each job when the lock supports it. A lost
// lease ends the cycle so the new holder is not raced.
func (s *Service) renew(ctx context.Context) error {
	renewer, ok := s.lock.(Renewer)
	if !ok {
		return nil
	}
	if err := renewer.Renew(ctx); err != nil {
		return fmt.Errorf("lease renew: %w", err)
	}
	return nil
}

func (s *Service) due(job Job, now time.Time) bool {
	last, ok := s.lastRun[job.Name()]
	return !ok || now.Sub(last) >= jobInterval(job, s.interval)
}

// jobInterval reads the job's own cadence, falling back to the service default.
func jobInterval(job Job, fallback time.Duration) time.Duration {
	if scheduled, ok := job.(Scheduled); ok {
		if interval := scheduled.Interval(); interval > 0 {
			return interval
		}
	}
	return fallback
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithJob(ctx, job.Name())
	start := time.Now()
	err := s.invoke(jobCtx, job)
	elapsed := time.Since(start)
	s.metrics.ObserveRun(job.Name(), elapsed, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return
	}
	s.logg.Info(jobCtx, "cron.job_completed")
}

// invoke runs job under the per-job deadline and turns a panic into an error
// so the remaining jobs in the cycle still run.
func (s *Service) invoke(ctx context.Context, job Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
