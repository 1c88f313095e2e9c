package taskchain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DiGi-MaN/TaskChain/pkg/events"
)

// DoneFn observes the pipeline outcome: true when the queue was exhausted,
// false when the chain aborted for any reason.
type DoneFn func(success bool)

// ErrorFn receives a task failure and the identity of the failing task.
type ErrorFn func(err error, task TaskInfo)

// Chain is an ordered pipeline of tasks that execute strictly in append
// order, each receiving the previous task's result, hopping between the main
// and background execution contexts as each task's affinity requires.
//
// A chain is built fluently, executed once, then discarded. All append
// methods panic with a usage ChainError when called on an executing
// non-shared chain.
type Chain struct {
	id      uuid.UUID
	factory *Factory
	logger  *slog.Logger

	shared     bool
	sharedName string

	// mu guards the queue, flags, slots and callbacks below.
	// Never held across task-body code.
	mu        sync.Mutex
	queue     []*taskHolder
	nextIndex int
	executed  bool
	done      bool
	current   *taskHolder
	previous  any
	doneFn    DoneFn
	errFn     ErrorFn

	// data is the per-chain scratch space. It is only ever touched by the
	// single in-flight task or the chain's own bookkeeping, so it needs no
	// locking of its own.
	data map[string]any
}

func newChain(f *Factory, shared bool, sharedName string) *Chain {
	id := uuid.New()
	logger := f.logger.With(slog.String("chain_id", id.String()))
	if shared {
		logger = logger.With(slog.String("shared_name", sharedName))
	}
	return &Chain{
		id:         id,
		factory:    f,
		logger:     logger,
		shared:     shared,
		sharedName: sharedName,
		data:       make(map[string]any),
	}
}

// ID returns the chain's unique identity.
func (c *Chain) ID() uuid.UUID {
	return c.id
}

// SharedName returns the logical name of a shared chain, or "" for an
// ordinary chain.
func (c *Chain) SharedName() string {
	return c.sharedName
}

/* ---- task data store ---- */

// SetData saves a value on the chain so a task further up the chain can
// read it. Returns the previous value under the key, if any.
func (c *Chain) SetData(key string, val any) any {
	old := c.data[key]
	c.data[key] = val
	return old
}

// GetData retrieves a value saved by a previous task, or nil.
func (c *Chain) GetData(key string) any {
	return c.data[key]
}

// HasData reports whether the chain has a value saved under key.
func (c *Chain) HasData(key string) bool {
	_, ok := c.data[key]
	return ok
}

// RemoveData deletes a saved value, returning it.
func (c *Chain) RemoveData(key string) any {
	old := c.data[key]
	delete(c.data, key)
	return old
}

/* ---- append surface ---- */

// Add appends a task with the given affinity. Fluent.
func (c *Chain) Add(affinity Affinity, t Task) *Chain {
	return c.add(affinity, task{kind: kindDirect, direct: t})
}

// AddGeneric appends a no-input, no-output task with the given affinity.
func (c *Chain) AddGeneric(affinity Affinity, g Generic) *Chain {
	return c.add(affinity, task{kind: kindGeneric, generic: g})
}

// AddCallback appends a callback-style task with the given affinity.
func (c *Chain) AddCallback(affinity Affinity, cb Callback) *Chain {
	return c.add(affinity, task{kind: kindCallback, callback: cb})
}

// AddGenericCallback appends a valueless callback-style task with the given affinity.
func (c *Chain) AddGenericCallback(affinity Affinity, cb GenericCallback) *Chain {
	return c.add(affinity, task{kind: kindGenericCallback, genCallback: cb})
}

// Main appends a task pinned to the main execution context.
func (c *Chain) Main(t Task) *Chain {
	return c.Add(AffinityMain, t)
}

// Background appends a task pinned to a background execution context.
func (c *Chain) Background(t Task) *Chain {
	return c.Add(AffinityBackground, t)
}

// Current appends a task that runs wherever control flow currently is.
func (c *Chain) Current(t Task) *Chain {
	return c.Add(AffinityCurrent, t)
}

// Delay pauses the chain for d before the next task, forwarding the previous
// result unchanged. The continuation is dispatched on the main context.
func (c *Chain) Delay(d time.Duration) *Chain {
	exec := c.factory.executor
	return c.AddCallback(AffinityCurrent, func(_ context.Context, input any, next NextFunc) error {
		exec.RunOnMainAfter(d, func(mctx context.Context) {
			next(mctx, input)
		})
		return nil
	})
}

// StoreAsData saves the previous task's result under key and forwards it
// unchanged to the next task.
func (c *Chain) StoreAsData(key string) *Chain {
	return c.Current(func(ctx context.Context, input any) (any, error) {
		c.SetData(key, input)
		return input, nil
	})
}

// ReturnData reads key from the data store and passes it to the next task.
func (c *Chain) ReturnData(key string) *Chain {
	return c.Current(func(ctx context.Context, _ any) (any, error) {
		return c.GetData(key), nil
	})
}

// ReturnChain passes the chain itself to the next task.
func (c *Chain) ReturnChain() *Chain {
	return c.Current(func(ctx context.Context, _ any) (any, error) {
		return c, nil
	})
}

// AbortIfNull aborts the chain when the previous result is nil, invoking
// action with args first when one is given. A non-nil result is forwarded
// unchanged.
func (c *Chain) AbortIfNull(action NullAction, args ...any) *Chain {
	return c.Current(func(ctx context.Context, input any) (any, error) {
		if input == nil {
			if action != nil {
				action(args...)
			}
			return nil, ErrAbort
		}
		return input, nil
	})
}

func (c *Chain) add(affinity Affinity, t task) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.shared && c.executed {
		panic(NewError(ErrCodeChainExecuting, "cannot append to an executing chain"))
	}

	c.nextIndex++
	c.queue = append(c.queue, &taskHolder{
		chain:    c,
		task:     t,
		affinity: affinity,
		index:    c.nextIndex,
	})
	return c
}

/* ---- execution ---- */

// Execute begins executing the chain with no outcome callbacks.
// See ExecuteWith.
func (c *Chain) Execute(ctx context.Context) {
	c.ExecuteWith(ctx, nil, nil)
}

// ExecuteWith begins executing the chain. The context tells the chain where
// the caller is currently running (pass the context an Executor handed you,
// or context.Background() from a plain goroutine). done, when non-nil, fires
// exactly once with the pipeline outcome; errh, when non-nil, receives task
// failures instead of the log.
//
// Executing a non-shared chain twice panics with a usage ChainError. For a
// shared chain, an execute while one is already in flight under the same
// name is a silent no-op: the caller's tasks and callbacks are dropped and
// the in-flight chain owns the outcome.
func (c *Chain) ExecuteWith(ctx context.Context, done DoneFn, errh ErrorFn) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.executed {
		c.mu.Unlock()
		if c.shared {
			return
		}
		panic(NewError(ErrCodeAlreadyExecuted, "chain has already been executed"))
	}
	c.executed = true
	c.doneFn = done
	c.errFn = errh
	c.mu.Unlock()

	if c.shared && !c.factory.registerShared(c) {
		// Another chain is in flight under this name; it owns the outcome.
		return
	}

	c.logger.Debug("chain started", slog.String("location", LocationOf(ctx).String()))
	c.publish(events.ChainStarted, 0)
	c.nextTask(ctx)
}

// nextTask pops the head of the queue and fires it, switching execution
// contexts as the task's affinity requires. Affinity is resolved lazily
// against the location carried by ctx, so a task that itself hopped contexts
// mid-run cannot desynchronize the tasks after it.
func (c *Chain) nextTask(ctx context.Context) {
	c.mu.Lock()
	var h *taskHolder
	if len(c.queue) > 0 {
		h = c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
	}
	c.current = h
	if h == nil {
		c.done = true
	}
	c.mu.Unlock()

	if h == nil {
		c.setPrevious(nil)
		c.finish(true)
		return
	}

	onMain := LocationOf(ctx) == LocationMain
	switch {
	case h.affinity == AffinityCurrent || c.factory.isShutdown():
		h.run(ctx)
	case h.affinity == AffinityBackground:
		if onMain {
			c.factory.executor.RunInBackground(h.run)
		} else {
			h.run(ctx)
		}
	default: // AffinityMain
		if onMain {
			h.run(ctx)
		} else {
			c.factory.executor.RunOnMain(h.run)
		}
	}
}

// finish marks the chain done and reports the outcome. A shared chain is
// removed from the registry under its name before the done callback fires.
func (c *Chain) finish(success bool) {
	c.mu.Lock()
	c.done = true
	done := c.doneFn
	c.mu.Unlock()

	if c.shared {
		c.factory.unregisterShared(c.sharedName, c)
	}

	if success {
		c.logger.Debug("chain completed")
		c.publish(events.ChainCompleted, 0)
	} else {
		c.logger.Debug("chain aborted")
		c.publish(events.ChainAborted, 0)
	}

	if done != nil {
		done(success)
	}
}

/* ---- holder plumbing ---- */

func (c *Chain) takePrevious() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.previous
	c.previous = nil
	return prev
}

func (c *Chain) setPrevious(v any) {
	c.mu.Lock()
	c.previous = v
	c.mu.Unlock()
}

func (c *Chain) clearQueue() {
	c.mu.Lock()
	c.queue = nil
	c.mu.Unlock()
}

func (c *Chain) errorHandler() ErrorFn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errFn
}

func (c *Chain) publish(eventType string, taskIndex int) {
	hub := c.factory.hub
	if hub == nil {
		return
	}
	hub.Publish(events.Event{
		ChainID:    c.id.String(),
		SharedName: c.sharedName,
		TaskIndex:  taskIndex,
		Type:       eventType,
	})
}
