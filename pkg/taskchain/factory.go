package taskchain

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DiGi-MaN/TaskChain/pkg/events"
)

// Executor is the execution context provider the chain engine schedules
// through. All methods are fire-and-forget; the engine never blocks on them.
// Implementations must invoke every callback with a context stamped via
// WithLocation so the chain can tell where its control flow is.
type Executor interface {
	// RunOnMain runs fn on the main execution context.
	RunOnMain(fn func(context.Context))
	// RunInBackground runs fn on a background execution context.
	RunInBackground(fn func(context.Context))
	// RunOnMainAfter runs fn on the main execution context after d.
	RunOnMainAfter(d time.Duration, fn func(context.Context))
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger used by the factory and its chains.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithHub makes the factory's chains publish lifecycle events to hub.
func WithHub(hub events.Hub) Option {
	return func(f *Factory) {
		f.hub = hub
	}
}

// Factory builds chains bound to an Executor and owns the shared-chain
// registry, which guarantees at most one in-flight execution per logical
// name.
type Factory struct {
	executor Executor
	logger   *slog.Logger
	hub      events.Hub
	shutdown atomic.Bool

	// mu guards shared, independently of any single chain's lock.
	mu     sync.Mutex
	shared map[string]*Chain
}

// NewFactory creates a Factory scheduling through exec.
func NewFactory(exec Executor, opts ...Option) *Factory {
	f := &Factory{
		executor: exec,
		logger:   slog.Default(),
		shared:   make(map[string]*Chain),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewChain creates an ordinary single-use chain.
func (f *Factory) NewChain() *Chain {
	return newChain(f, false, "")
}

// SharedChain returns the chain registered in flight under name, so callers
// can append to the current round, or a fresh shared chain when none is
// executing. At most one execution per name is ever in flight.
func (f *Factory) SharedChain(name string) *Chain {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.shared[name]; ok {
		return c
	}
	return newChain(f, true, name)
}

// Shutdown puts the factory in a shutting-down state: from now on every task
// runs inline on the calling goroutine regardless of affinity, so in-flight
// chains can drain without scheduling hops.
func (f *Factory) Shutdown() {
	f.shutdown.Store(true)
	f.logger.Info("taskchain factory shutting down")
}

func (f *Factory) isShutdown() bool {
	return f.shutdown.Load()
}

// registerShared claims the shared name for c. Returns false when another
// chain is already in flight under the name.
func (f *Factory) registerShared(c *Chain) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.shared[c.sharedName]; ok && existing != c {
		return false
	}
	f.shared[c.sharedName] = c
	return true
}

// unregisterShared releases the shared name, but only while c still owns it.
func (f *Factory) unregisterShared(name string, c *Chain) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shared[name] == c {
		delete(f.shared, name)
	}
}
