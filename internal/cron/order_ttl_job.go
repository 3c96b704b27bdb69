package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

const defaultOrderTTL = 72 * time.Hour

// OrderTTLJobParams configure expiry of orders that were never paid.
type OrderTTLJobParams struct {
	Logger   *logger.Logger
	Orders   pendingOrderExpirer
	TTL      time.Duration
	Interval time.Duration
}

type pendingOrderExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

// NewOrderTTLJob builds the job that fails PENDING orders older than the TTL.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	return &orderTTLJob{
		logg:     params.Logger,
		orders:   params.Orders,
		ttl:      ttl,
		interval: params.Interval,
		now:      time.Now,
	}, nil
}

type orderTTLJob struct {
	logg     *logger.Logger
	orders   pendingOrderExpirer
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func (j *orderTTLJob) Name() string            { return "order-ttl" }
func (j *orderTTLJob) Interval() time.Duration { return j.interval }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	n, err := j.orders.ExpirePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "expired": n})
	j.logg.Info(logCtx, "pending order sweep complete")
	return nil
}
