package executor

import (
	"context"
	"time"

	"github.com/DiGi-MaN/TaskChain/pkg/taskchain"
)

// Synchronous runs every callback inline on the calling goroutine, stamped
// with the requested location. There is no real main context; this executor
// exists for tests and simple batch programs where deterministic, in-order
// execution matters more than true context isolation.
type Synchronous struct {
	base context.Context
}

// NewSynchronous creates a Synchronous executor.
func NewSynchronous() *Synchronous {
	return &Synchronous{base: context.Background()}
}

func (s *Synchronous) RunOnMain(fn func(context.Context)) {
	fn(taskchain.WithLocation(s.base, taskchain.LocationMain))
}

func (s *Synchronous) RunInBackground(fn func(context.Context)) {
	fn(taskchain.WithLocation(s.base, taskchain.LocationBackground))
}

// RunOnMainAfter waits out d on the calling goroutine, then runs fn inline.
func (s *Synchronous) RunOnMainAfter(d time.Duration, fn func(context.Context)) {
	time.Sleep(d)
	fn(taskchain.WithLocation(s.base, taskchain.LocationMain))
}
