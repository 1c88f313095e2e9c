// Package logging carries chain correlation attributes through contexts and
// into slog records.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	chainIDKey ctxKey = iota
	sharedNameKey
	taskIndexKey
)

// WithChainID returns a context with the chain ID set.
func WithChainID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, chainIDKey, id)
}

// WithSharedName returns a context with the shared chain name set.
func WithSharedName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, sharedNameKey, name)
}

// WithTaskIndex returns a context with the 1-based task index set.
func WithTaskIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, taskIndexKey, index)
}

// ChainID extracts the chain ID from the context, or "" if absent.
func ChainID(ctx context.Context) string {
	v, _ := ctx.Value(chainIDKey).(string)
	return v
}

// SharedName extracts the shared chain name from the context, or "" if absent.
func SharedName(ctx context.Context) string {
	v, _ := ctx.Value(sharedNameKey).(string)
	return v
}

// TaskIndex extracts the task index from the context, or 0 if absent.
func TaskIndex(ctx context.Context) int {
	v, _ := ctx.Value(taskIndexKey).(int)
	return v
}

// CorrelationHandler wraps an slog.Handler, automatically injecting chain
// correlation attributes from the context into every log record. Use with
// slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and the attributes appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation attribute injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := ChainID(ctx); v != "" {
		r.AddAttrs(slog.String("chain_id", v))
	}
	if v := SharedName(ctx); v != "" {
		r.AddAttrs(slog.String("shared_name", v))
	}
	if v := TaskIndex(ctx); v != 0 {
		r.AddAttrs(slog.Int("task_index", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
