package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

type flagLock struct {
	held     bool
	released int
}

func (l *flagLock) Acquire(context.Context) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *flagLock) Release(context.Context) error {
	l.held = false
	l.released++
	return nil
}

// renewingLock loses its lease after a fixed number of renewals.
type renewingLock struct {
	flagLock
	renewals  int
	loseAfter int
}

func (l *renewingLock) Renew(context.Context) error {
	l.renewals++
	if l.renewals > l.loseAfter {
		return errLeaseLost
	}
	return nil
}

type countingJob struct {
	name  string
	every time.Duration
	run   func(ctx context.Context) error
	runs  int
}

func (j *countingJob) Name() string            { return j.name }
func (j *countingJob) Interval() time.Duration { return j.every }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs++
	if j.run != nil {
		return j.run(ctx)
	}
	return nil
}

// plainJob has no Interval method, so it runs on the service default.
type plainJob struct{ runs int }

func (j *plainJob) Name() string { return "daily" }

func (j *plainJob) Run(context.Context) error {
	j.runs++
	return nil
}

func newCronService(t *testing.T, lock Lock, now func() time.Time, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry:   NewRegistry(jobs...),
		Lock:       lock,
		JobTimeout: 50 * time.Millisecond,
		Now:        now,
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	failing := &countingJob{name: "fail", run: func(context.Context) error { return errors.New("boom") }}
	panicking := &countingJob{name: "panic", run: func(context.Context) error { panic("nil map") }}
	healthy := &countingJob{name: "ok"}
	lock := &flagLock{}
	svc := newCronService(t, lock, nil, failing, panicking, healthy)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, panicking.runs)
	assert.Equal(t, 1, healthy.runs)
	assert.Equal(t, 1, lock.released)
	assert.False(t, lock.held)
}

func TestInvokeAppliesJobDeadline(t *testing.T) {
	var deadline time.Time
	slow := &countingJob{name: "slow", run: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}}
	svc := newCronService(t, &flagLock{}, nil, slow)

	start := time.Now()
	err := svc.invoke(context.Background(), slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(50*time.Millisecond), deadline, 40*time.Millisecond)

	panicky := &countingJob{name: "p", run: func(context.Context) error { panic("x") }}
	assert.EqualError(t, svc.invoke(context.Background(), panicky), "job p panicked: x")
}

func TestRunCycleHonoursJobIntervals(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fast := &countingJob{name: "fast", every: 15 * time.Minute}
	slow := &countingJob{name: "slow", every: 6 * time.Hour}
	daily := &plainJob{}
	svc := newCronService(t, &flagLock{}, func() time.Time { return now }, fast, slow, daily)

	steps := []struct {
		advance           time.Duration
		fast, slow, daily int
	}{
		{0, 1, 1, 1},
		{10 * time.Minute, 1, 1, 1},
		{5 * time.Minute, 2, 1, 1},
		{6 * time.Hour, 3, 2, 1},
		{18 * time.Hour, 4, 3, 2},
	}
	for i, step := range steps {
		now = now.Add(step.advance)
		require.NoError(t, svc.runCycle(context.Background()), "step %d", i)
		assert.Equal(t, []int{step.fast, step.slow, step.daily}, []int{fast.runs, slow.runs, daily.runs}, "step %d", i)
	}
}

func TestRunCycleStopsWhenLeaseLost(t *testing.T) {
	first := &countingJob{name: "first"}
	second := &countingJob{name: "second"}
	third := &countingJob{name: "third"}
	lock := &renewingLock{loseAfter: 1}
	svc := newCronService(t, lock, nil, first, second, third)

	err := svc.runCycle(context.Background())
	assert.ErrorIs(t, err, errLeaseLost)
	assert.Equal(t, []int{1, 1, 0}, []int{first.runs, second.runs, third.runs})
	assert.Equal(t, 2, lock.renewals)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "only"}
	svc := newCronService(t, &flagLock{held: true}, nil, job)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &countingJob{name: "once", run: func(context.Context) error {
		cancel()
		return nil
	}}
	svc := newCronService(t, &flagLock{}, nil, job)

	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
	assert.Equal(t, 1, job.runs)
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &flagLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	assert.Error(t, err)
}
