package taskchain

import "context"

// Affinity declares which execution context a task must run on.
type Affinity int

const (
	// AffinityCurrent runs the task on whichever context control flow is
	// currently on, with no scheduling hop.
	AffinityCurrent Affinity = iota
	AffinityMain
	AffinityBackground
)

func (a Affinity) String() string {
	switch a {
	case AffinityMain:
		return "main"
	case AffinityBackground:
		return "background"
	default:
		return "current"
	}
}

// NextFunc delivers a callback task's result and advances the chain. It must
// be invoked exactly once, possibly from another goroutine; the context
// argument tells the chain where that goroutine is running (pass the context
// an Executor handed you, or context.Background() from a raw goroutine).
type NextFunc func(ctx context.Context, result any)

// DoneFunc is NextFunc for callback tasks that produce no value.
type DoneFunc func(ctx context.Context)

// Task consumes the previous task's result and produces the next one.
// Returning ErrAbort terminates the chain deliberately; any other error is
// routed to the chain's error handler.
type Task func(ctx context.Context, input any) (any, error)

// Generic is a task with no input and no output.
type Generic func(ctx context.Context) error

// Callback is a task that hands its result to next instead of returning it,
// so it can complete asynchronously. An error returned before next is called
// fails the task; a late next after such a failure is silently absorbed.
type Callback func(ctx context.Context, input any, next NextFunc) error

// GenericCallback is Callback without an input or a result value.
type GenericCallback func(ctx context.Context, done DoneFunc) error

// NullAction is invoked by AbortIfNull before the chain aborts, with the
// arguments given at append time (up to three in practice).
type NullAction func(args ...any)

// TaskInfo identifies a task to the chain's error handler.
type TaskInfo struct {
	Index    int // 1-based append order
	Affinity Affinity
	Kind     string
}

// Task shape tags. The holder's run switches on these.
type taskKind int

const (
	kindDirect taskKind = iota
	kindGeneric
	kindCallback
	kindGenericCallback
)

func (k taskKind) String() string {
	switch k {
	case kindDirect:
		return "task"
	case kindGeneric:
		return "generic"
	case kindCallback:
		return "callback"
	default:
		return "generic_callback"
	}
}

// task is the closed tagged variant wrapping one step body.
// Exactly one of the function fields is set, matching kind.
type task struct {
	kind        taskKind
	direct      Task
	generic     Generic
	callback    Callback
	genCallback GenericCallback
}
