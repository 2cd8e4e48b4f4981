// Package sched is a small interval scheduler for the ingestion jobs.
// Every job holds a single run slot: a firing that lands while the
// previous run is still going is skipped, never queued, so a slow
// backfill cannot pile up concurrent instances of itself.
package sched

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"nordpool-dataplane/internal/metrics"
)

// Job is one scheduled task.
type Job struct {
	Name         string
	Interval     time.Duration
	RunAtStartup bool
	Fn           func(ctx context.Context) error

	running sync.Mutex // the run slot; TryLock decides skip vs run
}

// Scheduler dispatches jobs on their intervals.
type Scheduler struct {
	jobs []*Job
	mx   *metrics.Metrics // nil-safe
	wg   sync.WaitGroup
}

func New(mx *metrics.Metrics) *Scheduler {
	return &Scheduler{mx: mx}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(j *Job) {
	s.jobs = append(s.jobs, j)
}

// Run starts one ticker goroutine per job and blocks until ctx is
// cancelled and all in-flight runs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
	}
	<-ctx.Done()
	s.wg.Wait()
	log.Printf("[sched] all jobs stopped")
}

func (s *Scheduler) runJob(ctx context.Context, j *Job) {
	defer s.wg.Done()

	if j.RunAtStartup {
		s.fire(ctx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

// fire executes one run if the slot is free.
func (s *Scheduler) fire(ctx context.Context, j *Job) {
	if !j.running.TryLock() {
		log.Printf("[sched] %s: previous run still active, skipping", j.Name)
		if s.mx != nil {
			s.mx.JobSkipped.WithLabelValues(j.Name).Inc()
		}
		return
	}
	defer j.running.Unlock()

	start := time.Now()
	outcome := "ok"

	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = "panic"
				log.Printf("[sched] %s: panic: %v\n%s", j.Name, r, debug.Stack())
			}
		}()
		if err := j.Fn(ctx); err != nil {
			if ctx.Err() != nil {
				outcome = "cancelled"
				return
			}
			outcome = "error"
			log.Printf("[sched] %s: %v", j.Name, err)
		}
	}()

	dur := time.Since(start)
	if s.mx != nil {
		s.mx.JobRuns.WithLabelValues(j.Name, outcome).Inc()
		s.mx.JobDuration.WithLabelValues(j.Name).Observe(dur.Seconds())
	}
	log.Printf("[sched] %s: run finished in %v (%s)", j.Name, dur.Round(time.Millisecond), outcome)
}
