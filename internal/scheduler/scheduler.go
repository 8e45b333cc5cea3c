// Package scheduler runs periodic background jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function into a Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name returns the job name.
func (j JobFunc) Name() string { return j.JobName }

// Run calls the wrapped function.
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	running map[string]bool
	entries map[string]cron.EntryID
}

// New creates a scheduler. timeout bounds each job run; zero means one minute.
func New(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(),
		timeout: timeout,
		running: make(map[string]bool),
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob registers job on a cron spec such as "@every 15m" or "0 */6 * * *".
func (s *Scheduler) AddJob(spec string, job Job) error {
	id, err := s.cron.AddFunc(spec, func() { _ = s.RunNow(job) })
	if err != nil {
		return fmt.Errorf("schedule %s on %q: %w", job.Name(), spec, err)
	}

	s.mu.Lock()
	s.entries[job.Name()] = id
	s.mu.Unlock()

	slog.Info("job registered", "job", job.Name(), "schedule", spec)
	return nil
}

// RunNow executes job immediately. It returns ErrJobRunning when a previous
// run of the same job is still in flight.
func (s *Scheduler) RunNow(job Job) error {
	name := job.Name()

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		slog.Warn("job still running, skipping", "job", name)
		return ErrJobRunning
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		slog.Error("job failed", "job", name, "error", err)
		return err
	}
	slog.Debug("job completed", "job", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Next returns the next scheduled run of a job, if registered.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start starts the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Stop stops the runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler stopped")
}
