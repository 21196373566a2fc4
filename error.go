package unitz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error provides rich context about unit processing failures.
// It wraps the underlying error with the path of named components the
// failure passed through, the input that was being processed, and whether
// the failure was due to timeout or cancellation.
//
// Error is produced by unit adapters (UnitOf) and decorator transforms
// (Recover, Retry, Deadline). It is deliberately not produced by Wrap:
// errors crossing the Factory interface propagate verbatim.
type Error[T any] struct {
	InputData T
	Timestamp time.Time
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface, providing a detailed error message.
func (e *Error[T]) Error() string {
	location := "unit"
	if len(e.Path) > 0 {
		location = strings.Join(e.Path, " -> ")
	}

	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting error wrapping patterns.
func (e *Error[T]) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error was caused by a timeout.
func (e *Error[T]) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled returns true if the error was caused by cancellation.
func (e *Error[T]) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// recoverFromPanic converts a panic during unit processing into an *Error[T]
// carrying the recovering component's name. Used via defer by unit adapters
// and the Recover transform.
func recoverFromPanic[T any](result *T, err *error, name Name, input T) {
	if r := recover(); r != nil {
		var zero T
		*result = zero
		*err = &Error[T]{
			Err:       fmt.Errorf("panic: %v", r),
			InputData: input,
			Path:      []Name{name},
			Timestamp: time.Now(),
		}
	}
}
