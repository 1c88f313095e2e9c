package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DiGi-MaN/TaskChain/pkg/taskchain"
)

func TestAsyncQueue_BasicExecution(t *testing.T) {
	q := NewAsyncQueue(2, nil)
	defer q.Shutdown()

	var ran int64
	var loc taskchain.Location
	err := q.Submit(context.Background(), func(ctx context.Context) {
		atomic.AddInt64(&ran, 1)
		loc = taskchain.LocationOf(ctx)
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	q.Wait()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("work did not execute")
	}
	if loc != taskchain.LocationBackground {
		t.Errorf("expected background location, got %v", loc)
	}

	m := q.Metrics()
	if m.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", m.Completed)
	}
}

func TestAsyncQueue_ConcurrencyLimit(t *testing.T) {
	size := 3
	q := NewAsyncQueue(size, nil)
	defer q.Shutdown()

	var maxConcurrent int64
	var current int64
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		err := q.Submit(context.Background(), func(ctx context.Context) {
			c := atomic.AddInt64(&current, 1)
			mu.Lock()
			if c > maxConcurrent {
				maxConcurrent = c
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		})
		if err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	q.Wait()

	if maxConcurrent > int64(size) {
		t.Errorf("max concurrent %d exceeded queue size %d", maxConcurrent, size)
	}
	if maxConcurrent == 0 {
		t.Error("no concurrent execution detected")
	}
}

func TestAsyncQueue_Backpressure(t *testing.T) {
	q := NewAsyncQueue(1, nil)
	defer q.Shutdown()

	started := make(chan struct{})
	block := make(chan struct{})

	// Fill the queue with a blocking callback.
	err := q.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-block
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	<-started

	// Second submit should block since the queue is full (size=1).
	submitted := make(chan struct{})
	go func() {
		q.Submit(context.Background(), func(ctx context.Context) {})
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Error("second submit should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Good, it's blocking (backpressure).
	}

	close(block)

	select {
	case <-submitted:
		// Good, second submit unblocked.
	case <-time.After(time.Second):
		t.Error("second submit did not unblock after first callback completed")
	}

	q.Wait()
}

func TestAsyncQueue_SubmitAfterShutdown(t *testing.T) {
	q := NewAsyncQueue(1, nil)
	q.Shutdown()

	err := q.Submit(context.Background(), func(ctx context.Context) {
		t.Error("callback must not run after shutdown")
	})
	if err != ErrQueueShutdown {
		t.Errorf("expected ErrQueueShutdown, got %v", err)
	}
}

func TestAsyncQueue_SubmitRespectsContext(t *testing.T) {
	q := NewAsyncQueue(1, nil)
	defer q.Shutdown()

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	q.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Submit(ctx, func(ctx context.Context) {})
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestAsyncQueue_PanicIsContained(t *testing.T) {
	q := NewAsyncQueue(1, nil)
	defer q.Shutdown()

	if err := q.Submit(context.Background(), func(ctx context.Context) {
		panic("contained")
	}); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	q.Wait()

	if m := q.Metrics(); m.Panics != 1 {
		t.Errorf("expected 1 panic recorded, got %d", m.Panics)
	}
}
