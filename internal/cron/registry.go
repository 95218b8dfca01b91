package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is a task run by the cron service on each tick it is due.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs run at most once per Every; other jobs run on every tick.
type Periodic interface {
	Every() time.Duration
}

// Registry holds jobs keyed by unique name, in registration order.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{names: make(map[string]struct{})}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds job. Nil jobs are ignored; duplicate names are rejected.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("cron job %q registered twice", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

type everyJob struct {
	Job
	every time.Duration
}

func (e everyJob) Every() time.Duration { return e.every }

// Every wraps job so it runs at most once per interval.
func Every(job Job, interval time.Duration) Job {
	if job == nil || interval <= 0 {
		return job
	}
	return everyJob{Job: job, every: interval}
}
