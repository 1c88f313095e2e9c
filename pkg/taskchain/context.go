package taskchain

import "context"

// Location identifies which execution context a callback is running on.
type Location int

const (
	// LocationUnknown is the zero value: a context that was never stamped by
	// an Executor. The chain treats it as off-main.
	LocationUnknown Location = iota
	LocationMain
	LocationBackground
)

func (l Location) String() string {
	switch l {
	case LocationMain:
		return "main"
	case LocationBackground:
		return "background"
	default:
		return "unknown"
	}
}

type ctxKey int

const (
	locationKey ctxKey = iota
	chainKey
)

// WithLocation returns a context stamped with the given execution location.
// Executor implementations call this on every callback they dispatch; the
// chain re-derives "am I on the main context" from the context it is handed.
func WithLocation(ctx context.Context, loc Location) context.Context {
	return context.WithValue(ctx, locationKey, loc)
}

// LocationOf extracts the execution location from the context.
// Returns LocationUnknown for an unstamped context.
func LocationOf(ctx context.Context) Location {
	loc, _ := ctx.Value(locationKey).(Location)
	return loc
}

// withChain records the chain owning the currently executing task.
func withChain(ctx context.Context, c *Chain) context.Context {
	return context.WithValue(ctx, chainKey, c)
}

// FromContext returns the chain whose task is executing under this context,
// or nil outside a task body. The handle is valid for the lifetime of the
// chain; do not retain it after the done callback has fired.
func FromContext(ctx context.Context) *Chain {
	c, _ := ctx.Value(chainKey).(*Chain)
	return c
}
