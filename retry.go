package unitz

import (
	"context"
	"errors"
	"time"
)

// Retry returns a Transform whose produced units re-invoke the wrapped unit
// on failure, up to attempts times per item. It immediately retries without
// delay, making it suitable for quick operations or failures expected to
// clear immediately.
//
// Each attempt uses the same input item. Context cancellation is checked
// between attempts to allow early termination. If all attempts fail, the
// last error is returned with this decorator's name prepended to its path.
//
// Use Retry for:
//   - Network calls with transient failures
//   - Database operations during brief contentions
//   - Any per-item operation with intermittent failures
//
// attempts below 1 is normalized to 1.
//
// Example:
//
//	factory, err := unitz.NewWrap("writer-stage", inner,
//	    unitz.Retry[Row]("writer-retry", 3),
//	)
func Retry[T any](name Name, attempts int) Transform[T] {
	if attempts < 1 {
		attempts = 1
	}
	return func(inner Unit[T]) Unit[T] {
		return &retryUnit[T]{name: name, inner: inner, attempts: attempts}
	}
}

type retryUnit[T any] struct {
	inner    Unit[T]
	name     Name
	attempts int
}

// Name returns the wrapped unit's name. Retry adds behavior, not identity.
func (u *retryUnit[T]) Name() Name {
	return u.inner.Name()
}

// Process implements the Unit interface.
func (u *retryUnit[T]) Process(ctx context.Context, item T) (T, error) {
	var lastErr error
	var lastResult T

	for i := 0; i < u.attempts; i++ {
		result, err := u.inner.Process(ctx, item)
		if err == nil {
			return result, nil
		}

		lastErr = err
		lastResult = result

		// Check if context is canceled between attempts
		if ctx.Err() != nil {
			return item, &Error[T]{
				Err:       ctx.Err(),
				InputData: item,
				Path:      []Name{u.name},
				Timeout:   errors.Is(ctx.Err(), context.DeadlineExceeded),
				Canceled:  errors.Is(ctx.Err(), context.Canceled),
				Timestamp: time.Now(),
			}
		}
	}

	// All attempts failed - return the last error
	var unitErr *Error[T]
	if errors.As(lastErr, &unitErr) {
		// Prepend this decorator's name to the path
		unitErr.Path = append([]Name{u.name}, unitErr.Path...)
		return lastResult, unitErr
	}
	// Handle plain errors by wrapping them
	return lastResult, &Error[T]{
		Timestamp: time.Now(),
		InputData: item,
		Err:       lastErr,
		Path:      []Name{u.name},
	}
}
