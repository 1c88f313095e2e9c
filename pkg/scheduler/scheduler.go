// Package scheduler runs chain templates on cron schedules. Jobs are held in
// memory; overlap suppression for a job comes from building shared chains.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DiGi-MaN/TaskChain/pkg/taskchain"
)

// DefaultTickInterval is how often the scheduler checks for due jobs.
const DefaultTickInterval = time.Second

// ChainBuilder builds a fresh chain for one run of a scheduled job. Return a
// shared chain to guarantee two runs of the job never overlap.
type ChainBuilder func() *taskchain.Chain

// job is one registered cron entry.
type job struct {
	name       string
	expr       string
	schedule   cron.Schedule
	builder    ChainBuilder
	nextRun    time.Time // zero = due on the next tick
	lastRun    time.Time
	lastStatus string
}

// JobStatus is a snapshot of a registered job for querying.
type JobStatus struct {
	Name       string    `json:"name"`
	Expr       string    `json:"expr"`
	NextRun    time.Time `json:"next_run"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often due jobs are checked.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// Scheduler polls its registered jobs and executes the ones that are due.
type Scheduler struct {
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	jobs     map[string]*job

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// New creates a Scheduler. Cron expressions accept an optional leading
// seconds field.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: DefaultTickInterval,
		jobs:     make(map[string]*job),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. The first run happens on the next tick; subsequent
// runs follow the cron expression. Registering an existing name replaces it.
func (s *Scheduler) Register(name, cronExpr string, builder ChainBuilder) error {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	if builder == nil {
		return fmt.Errorf("job %q has no chain builder", name)
	}

	s.mu.Lock()
	s.jobs[name] = &job{
		name:     name,
		expr:     cronExpr,
		schedule: schedule,
		builder:  builder,
	}
	s.mu.Unlock()
	return nil
}

// Remove deletes a job. An execution already in flight finishes normally.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	delete(s.jobs, name)
	s.mu.Unlock()
}

// Status returns a snapshot of all registered jobs.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStatus{
			Name:       j.name,
			Expr:       j.expr,
			NextRun:    j.nextRun,
			LastRun:    j.lastRun,
			LastStatus: j.lastStatus,
		})
	}
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("chain scheduler started", slog.Duration("tick", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick executes every registered job that is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := make([]*job, 0)
	for _, j := range s.jobs {
		if j.nextRun.IsZero() || !j.nextRun.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if !s.tryAcquire(j.name) {
			continue // previous run still in flight
		}
		s.runJob(ctx, j, now)
	}
}

// runJob builds the job's chain and executes it. The in-flight mark is
// released and the status recorded when the chain's done callback fires.
func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) {
	s.logger.Debug("running scheduled chain", slog.String("job", j.name))

	s.mu.Lock()
	j.lastRun = now
	j.nextRun = j.schedule.Next(now)
	s.mu.Unlock()

	chain := j.builder()
	if chain == nil {
		s.logger.Error("job builder returned no chain", slog.String("job", j.name))
		s.release(j.name)
		return
	}

	chain.ExecuteWith(ctx, func(success bool) {
		status := "success"
		if !success {
			status = "aborted"
			s.logger.Warn("scheduled chain aborted", slog.String("job", j.name))
		}
		s.mu.Lock()
		j.lastStatus = status
		s.mu.Unlock()
		s.release(j.name)
	}, nil)
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// release removes the job from the in-flight set.
func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// NextRun computes the next run time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler loop. Chains already executing
// are not interrupted; abort is task-initiated only.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	s.logger.Info("chain scheduler stopped")
	return nil
}
