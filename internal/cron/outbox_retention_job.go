package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

const (
	defaultOutboxRetention   = 30 * 24 * time.Hour
	defaultOutboxMinAttempts = 10
	outboxPruneBatch         = 500
)

type outboxPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time, minAttempts, batch int) (int64, error)
}

// OutboxRetentionJobParams configure pruning of the outbox table. MinAttempts
// should equal the publisher's attempt budget so only rows it abandoned count
// as dead.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Outbox      outboxPruner
	Retention   time.Duration
	MinAttempts int
	Interval    time.Duration
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	outbox      outboxPruner
	retention   time.Duration
	minAttempts int
	interval    time.Duration
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Outbox == nil:
		return nil, errors.New("outbox pruner required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		outbox:      params.Outbox,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		interval:    params.Interval,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultOutboxMinAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string            { return "outbox-retention" }
func (j *outboxRetentionJob) Interval() time.Duration { return j.interval }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.outbox.PruneBefore(ctx, cutoff, j.minAttempts, outboxPruneBatch)
	logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "deleted": deleted})
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(logCtx, "outbox retention sweep complete")
	return nil
}
