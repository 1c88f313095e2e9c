package taskchain

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeChainExecuting  = "CHAIN_EXECUTING"
	ErrCodeAlreadyExecuted = "ALREADY_EXECUTED"
	ErrCodeCompletedTwice  = "COMPLETED_TWICE"
	ErrCodeTaskPanic       = "TASK_PANIC"
	ErrCodeTaskFailed      = "TASK_FAILED"
)

// ErrAbort is the sentinel a task returns to terminate the chain deliberately.
// It is recognized by the task holder and never reaches the error handler.
var ErrAbort = errors.New("taskchain: chain aborted")

// ChainError is the structured error type for all chain operations.
type ChainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	TaskIndex int    `json:"task_index,omitempty"`
	Cause     error  `json:"-"`
}

func (e *ChainError) Error() string {
	if e.TaskIndex > 0 {
		return fmt.Sprintf("[%s] task %d: %s", e.Code, e.TaskIndex, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ChainError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ChainError.
func NewError(code, message string) *ChainError {
	return &ChainError{Code: code, Message: message}
}

// NewErrorf creates a new ChainError with a formatted message.
func NewErrorf(code, format string, args ...any) *ChainError {
	return &ChainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTask attaches the 1-based index of the offending task.
func (e *ChainError) WithTask(index int) *ChainError {
	e.TaskIndex = index
	return e
}

// WithCause attaches an underlying cause.
func (e *ChainError) WithCause(err error) *ChainError {
	e.Cause = err
	return e
}

// IsUsageError reports whether err is a programmer-misuse error: appending to
// an executing chain, executing a non-shared chain twice, or completing a
// callback task twice. Usage errors are raised as panics so integration bugs
// surface immediately instead of being swallowed.
func IsUsageError(err error) bool {
	var ce *ChainError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case ErrCodeChainExecuting, ErrCodeAlreadyExecuted, ErrCodeCompletedTwice:
		return true
	}
	return false
}
