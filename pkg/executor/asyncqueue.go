package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/DiGi-MaN/TaskChain/pkg/taskchain"
)

// QueueMetrics tracks async queue operational metrics.
type QueueMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Panics    int64 `json:"panics"`
}

// ErrQueueShutdown is returned when work is submitted to a shut-down queue.
var ErrQueueShutdown = errors.New("async queue is shut down")

// AsyncQueue is a bounded goroutine pool providing the background execution
// context. Every callback runs with a Background-stamped context.
type AsyncQueue struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics QueueMetrics
	logger  *slog.Logger
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
}

// NewAsyncQueue creates a queue with the given max concurrency.
func NewAsyncQueue(size int, logger *slog.Logger) *AsyncQueue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncQueue{
		sem:    make(chan struct{}, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Submit enqueues work. It blocks while the queue is at capacity
// (backpressure) and respects context cancellation while waiting. Returns
// ErrQueueShutdown if the queue has been shut down.
func (q *AsyncQueue) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueShutdown
	}
	q.mu.Unlock()

	// Acquire semaphore slot, respecting context cancellation and shutdown.
	select {
	case q.sem <- struct{}{}:
		// Slot acquired.
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueShutdown
	}

	// Re-check closed after acquiring the slot, in case Shutdown raced.
	// wg.Add(1) MUST be inside the lock to prevent race with Shutdown's wg.Wait().
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.sem // release slot
		return ErrQueueShutdown
	}
	q.wg.Add(1)
	atomic.AddInt64(&q.metrics.Active, 1)
	q.mu.Unlock()

	bgCtx := taskchain.WithLocation(ctx, taskchain.LocationBackground)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&q.metrics.Panics, 1)
				q.logger.Error("background callback panicked", slog.Any("panic", r))
			}
			atomic.AddInt64(&q.metrics.Active, -1)
			atomic.AddInt64(&q.metrics.Completed, 1)
			<-q.sem // release slot
			q.wg.Done()
		}()

		fn(bgCtx)
	}()

	return nil
}

// Wait blocks until all submitted work completes.
func (q *AsyncQueue) Wait() {
	q.wg.Wait()
}

// Shutdown gracefully stops the queue. It prevents new submissions and waits
// for all active work to complete.
func (q *AsyncQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
}

// Metrics returns a snapshot of the current queue metrics.
func (q *AsyncQueue) Metrics() QueueMetrics {
	return QueueMetrics{
		Active:    atomic.LoadInt64(&q.metrics.Active),
		Completed: atomic.LoadInt64(&q.metrics.Completed),
		Panics:    atomic.LoadInt64(&q.metrics.Panics),
	}
}
