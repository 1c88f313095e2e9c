// Package executor provides the default execution context provider for
// taskchain: a single-goroutine main loop, a bounded background queue, and a
// same-goroutine executor for tests and simple batch programs.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DiGi-MaN/TaskChain/pkg/taskchain"
)

// DefaultBackgroundWorkers is the default background queue concurrency.
const DefaultBackgroundWorkers = 10

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the loop's logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithBackgroundWorkers sets the background queue concurrency.
func WithBackgroundWorkers(n int) LoopOption {
	return func(l *Loop) {
		l.workers = n
	}
}

// Loop is the main execution context: a single goroutine that drains posted
// callbacks in order, each invoked with a Main-stamped context. Background
// work is delegated to an AsyncQueue. Posting from within a main callback
// never deadlocks; the job simply runs on a later iteration.
type Loop struct {
	logger  *slog.Logger
	workers int
	bg      *AsyncQueue

	mu      sync.Mutex
	jobs    []func(context.Context)
	wake    chan struct{}
	base    context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewLoop creates a Loop. Call Start before executing chains through it.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		logger:  slog.Default(),
		workers: DefaultBackgroundWorkers,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.bg = NewAsyncQueue(l.workers, l.logger)
	return l
}

// Start launches the dispatch goroutine. Jobs posted before Start are
// retained and run once the loop is up.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.done != nil {
		l.mu.Unlock()
		return fmt.Errorf("loop already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.base = loopCtx
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.loop(loopCtx)
	l.logger.Info("main loop started", slog.Int("background_workers", l.workers))
	return nil
}

func (l *Loop) loop(ctx context.Context) {
	defer close(l.done)

	mainCtx := taskchain.WithLocation(ctx, taskchain.LocationMain)

	// Drain anything posted before Start.
	l.drain(mainCtx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			l.drain(mainCtx)
		}
	}
}

func (l *Loop) drain(mainCtx context.Context) {
	for {
		l.mu.Lock()
		if len(l.jobs) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.jobs[0]
		l.jobs[0] = nil
		l.jobs = l.jobs[1:]
		l.mu.Unlock()

		fn(mainCtx)
	}
}

// RunOnMain posts fn to the main loop.
func (l *Loop) RunOnMain(fn func(context.Context)) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.logger.Debug("main loop stopped, dropping callback")
		return
	}
	l.jobs = append(l.jobs, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunInBackground hands fn to the background queue. The handoff happens on a
// separate goroutine so a saturated queue exerts backpressure without
// stalling the caller.
func (l *Loop) RunInBackground(fn func(context.Context)) {
	l.mu.Lock()
	base := l.base
	l.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	go func() {
		if err := l.bg.Submit(base, fn); err != nil {
			l.logger.Error("background submit failed", slog.String("error", err.Error()))
		}
	}()
}

// RunOnMainAfter posts fn to the main loop after d.
func (l *Loop) RunOnMainAfter(d time.Duration, fn func(context.Context)) {
	time.AfterFunc(d, func() {
		l.RunOnMain(fn)
	})
}

// Stop gracefully shuts the loop down: no new posts are accepted, the
// background queue drains, and the dispatch goroutine exits. Jobs still
// pending on the main queue are dropped and counted in the log.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.cancel == nil || l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	cancel := l.cancel
	pending := len(l.jobs)
	l.jobs = nil
	l.mu.Unlock()

	l.bg.Shutdown()
	cancel()
	<-l.done

	l.logger.Info("main loop stopped", slog.Int("dropped_jobs", pending))
	return nil
}
