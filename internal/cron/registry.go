package cron

import (
	"context"
	"time"
)

// Job is one sweep the worker runs under the shared lock.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduled jobs declare their own cadence instead of the service default.
type Scheduled interface {
	Interval() time.Duration
}

// Registry holds jobs in registration order. Names are unique because the
// service keys last-run bookkeeping by name; a repeated name is dropped.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds job and reports whether it was accepted.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	if r.names == nil {
		r.names = map[string]struct{}{}
	}
	if _, dup := r.names[job.Name()]; dup {
		return false
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return true
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}
