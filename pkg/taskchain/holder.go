package taskchain

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/DiGi-MaN/TaskChain/internal/logging"
	"github.com/DiGi-MaN/TaskChain/pkg/events"
)

// taskHolder wraps one task plus its declared affinity and owns the task's
// one-shot execution and completion bookkeeping. Owned exclusively by its
// chain; never shared across chains.
type taskHolder struct {
	chain    *Chain
	task     task
	affinity Affinity
	index    int // 1-based append order

	// mu guards executed and aborted. Never held across task-body code.
	mu       sync.Mutex
	executed bool
	aborted  bool
}

func (h *taskHolder) info() TaskInfo {
	return TaskInfo{Index: h.index, Affinity: h.affinity, Kind: h.task.kind.String()}
}

// run executes the task once. The previous task's result is taken as input
// and the slot cleared. Panics in the task body are recovered here so they
// never escape into the Executor's scheduling callback; usage-error panics
// are re-raised because they indicate an integration bug.
func (h *taskHolder) run(ctx context.Context) {
	c := h.chain
	arg := c.takePrevious()

	tctx := withChain(ctx, c)
	tctx = logging.WithChainID(tctx, c.id.String())
	tctx = logging.WithTaskIndex(tctx, h.index)
	if c.shared {
		tctx = logging.WithSharedName(tctx, c.sharedName)
	}

	c.logger.DebugContext(tctx, "task started",
		slog.Int("task_index", h.index),
		slog.String("affinity", h.affinity.String()),
		slog.String("location", LocationOf(ctx).String()),
	)
	c.publish(events.TaskStarted, h.index)

	switch h.task.kind {
	case kindDirect:
		res, err := h.invokeDirect(tctx, arg)
		if err != nil {
			h.fail(tctx, err)
			return
		}
		h.next(tctx, res)

	case kindGeneric:
		if err := h.invokeGeneric(tctx); err != nil {
			h.fail(tctx, err)
			return
		}
		h.next(tctx, nil)

	case kindCallback:
		if err := h.invokeCallback(tctx, arg); err != nil {
			h.fail(tctx, err)
		}

	case kindGenericCallback:
		if err := h.invokeGenericCallback(tctx); err != nil {
			h.fail(tctx, err)
		}
	}
}

func (h *taskHolder) invokeDirect(ctx context.Context, arg any) (res any, err error) {
	defer h.recoverPanic(&err)
	return h.task.direct(ctx, arg)
}

func (h *taskHolder) invokeGeneric(ctx context.Context) (err error) {
	defer h.recoverPanic(&err)
	return h.task.generic(ctx)
}

func (h *taskHolder) invokeCallback(ctx context.Context, arg any) (err error) {
	defer h.recoverPanic(&err)
	return h.task.callback(ctx, arg, h.next)
}

func (h *taskHolder) invokeGenericCallback(ctx context.Context) (err error) {
	defer h.recoverPanic(&err)
	return h.task.genCallback(ctx, func(cbCtx context.Context) {
		h.next(cbCtx, nil)
	})
}

// recoverPanic converts a task-body panic into a task failure. A usage-error
// panic (for example a synchronous double completion) is deliberate and is
// re-raised as-is.
func (h *taskHolder) recoverPanic(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if pe, ok := r.(error); ok {
		if IsUsageError(pe) {
			panic(r)
		}
		*err = NewErrorf(ErrCodeTaskPanic, "task panicked: %v", pe).
			WithTask(h.index).WithCause(pe)
		return
	}
	*err = NewErrorf(ErrCodeTaskPanic, "task panicked: %v", r).WithTask(h.index)
}

// next accepts the task's result and advances the chain. A completion after
// abort is absorbed; a second completion is a fatal usage error. The location
// is re-derived from ctx because a callback task may complete from a
// different goroutine than it started on.
func (h *taskHolder) next(ctx context.Context, result any) {
	if ctx == nil {
		ctx = context.Background()
	}

	h.mu.Lock()
	if h.aborted {
		h.mu.Unlock()
		h.chain.finish(false)
		return
	}
	if h.executed {
		h.mu.Unlock()
		h.chain.finish(false)
		panic(NewError(ErrCodeCompletedTwice, "task has already been completed").WithTask(h.index))
	}
	h.executed = true
	h.mu.Unlock()

	c := h.chain
	c.setPrevious(result)
	c.publish(events.TaskCompleted, h.index)
	c.nextTask(ctx)
}

// fail routes a task error: ErrAbort goes straight to the abort path, any
// other error reaches the chain's error handler (or the log) first. Either
// way the chain terminates.
func (h *taskHolder) fail(ctx context.Context, err error) {
	if !errors.Is(err, ErrAbort) {
		c := h.chain
		if handler := c.errorHandler(); handler != nil {
			handler(err, h.info())
		} else {
			c.logger.ErrorContext(ctx, "task failed",
				slog.Int("task_index", h.index),
				slog.String("error", err.Error()),
			)
		}
	}
	h.abort()
}

// abort terminates the chain: the remaining queue is cleared so pending
// holders become eligible for collection, the previous-result slot is
// emptied, and the chain reports an unsuccessful done.
func (h *taskHolder) abort() {
	h.mu.Lock()
	h.aborted = true
	h.mu.Unlock()

	c := h.chain
	c.setPrevious(nil)
	c.clearQueue()
	c.finish(false)
}
