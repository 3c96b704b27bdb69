package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/internal/subscriptions"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

const defaultSweepBatch = 200

type renewer interface {
	RenewDue(ctx context.Context, now time.Time) (subscriptions.RenewalResult, error)
}

type expirer interface {
	ProcessExpired(ctx context.Context, now time.Time, batch int) (licenses.SweepResult, error)
}

type staleMarker interface {
	MarkStale(ctx context.Context, now time.Time) (int, error)
}

// LicenseJobsParams wires the three licensing sweeps.
type LicenseJobsParams struct {
	Logger          *logger.Logger
	Subscriptions   renewer
	Licenses        expirer
	Activations     staleMarker
	BatchSize       int
	RenewalInterval time.Duration
	ExpiryInterval  time.Duration
	StaleInterval   time.Duration
}

// NewLicenseJobs returns the renewal, expiry and stale-activation jobs in the
// order a cycle should run them: renewals first so a paid renewal wins over expiry.
func NewLicenseJobs(params LicenseJobsParams) ([]Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription renewer required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license expirer required")
	}
	if params.Activations == nil {
		return nil, fmt.Errorf("activation stale marker required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return []Job{
		&renewalJob{logg: params.Logger, subs: params.Subscriptions, interval: params.RenewalInterval, now: time.Now},
		&expiryJob{logg: params.Logger, licenses: params.Licenses, batch: batch, interval: params.ExpiryInterval, now: time.Now},
		&staleJob{logg: params.Logger, activations: params.Activations, interval: params.StaleInterval, now: time.Now},
	}, nil
}

type renewalJob struct {
	logg     *logger.Logger
	subs     renewer
	interval time.Duration
	now      func() time.Time
}

func (j *renewalJob) Name() string            { return "subscription-renewal" }
func (j *renewalJob) Interval() time.Duration { return j.interval }

func (j *renewalJob) Run(ctx context.Context) error {
	result, err := j.subs.RenewDue(ctx, j.now().UTC())
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  result.Scanned,
		"renewed":  result.Renewed,
		"retrying": result.Retrying,
		"disabled": result.Disabled,
		"failed":   result.Failed,
	})
	if err != nil {
		return fmt.Errorf("renew due subscriptions: %w", err)
	}
	j.logg.Info(logCtx, "renewal sweep complete")
	return nil
}

type expiryJob struct {
	logg     *logger.Logger
	licenses expirer
	batch    int
	interval time.Duration
	now      func() time.Time
}

func (j *expiryJob) Name() string            { return "license-expiry" }
func (j *expiryJob) Interval() time.Duration { return j.interval }

func (j *expiryJob) Run(ctx context.Context) error {
	if _, err := j.licenses.ProcessExpired(ctx, j.now().UTC(), j.batch); err != nil {
		return fmt.Errorf("process expired licenses: %w", err)
	}
	return nil
}

type staleJob struct {
	logg        *logger.Logger
	activations staleMarker
	interval    time.Duration
	now         func() time.Time
}

func (j *staleJob) Name() string            { return "activation-stale" }
func (j *staleJob) Interval() time.Duration { return j.interval }

func (j *staleJob) Run(ctx context.Context) error {
	n, err := j.activations.MarkStale(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("mark stale activations: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "marked", n)
	j.logg.Info(logCtx, "stale activation sweep complete")
	return nil
}
