package unitz

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/clockz"
)

// Deadline returns a Transform whose produced units bound each Process call
// with a timeout. The wrapped unit runs with a context that is canceled once
// limit elapses; an overrun is reported as an *Error[T] with Timeout set.
//
// The wrapped unit is expected to respect context cancellation. A unit that
// ignores its context keeps running in the background after the deadline
// fires - the slot moves on, the goroutine leaks until the unit returns.
//
// Use Deadline for:
//   - Per-item calls to external services with strict latency budgets
//   - Protecting an execution slot from items that hang
//
// Example:
//
//	factory, err := unitz.NewWrap("lookup-stage", inner,
//	    unitz.Deadline[Query]("lookup-deadline", 2*time.Second),
//	)
func Deadline[T any](name Name, limit time.Duration) Transform[T] {
	return DeadlineWith[T](name, limit, clockz.RealClock)
}

// DeadlineWith is Deadline with an explicit clock, for tests that drive
// time with a fake clock.
func DeadlineWith[T any](name Name, limit time.Duration, clock clockz.Clock) Transform[T] {
	if clock == nil {
		clock = clockz.RealClock
	}
	return func(inner Unit[T]) Unit[T] {
		return &deadlineUnit[T]{name: name, inner: inner, limit: limit, clock: clock}
	}
}

type deadlineUnit[T any] struct {
	inner Unit[T]
	clock clockz.Clock
	name  Name
	limit time.Duration
}

// Name returns the wrapped unit's name. Deadline adds behavior, not identity.
func (u *deadlineUnit[T]) Name() Name {
	return u.inner.Name()
}

// Process implements the Unit interface.
func (u *deadlineUnit[T]) Process(ctx context.Context, item T) (T, error) {
	timeoutCtx, cancel := u.clock.WithTimeout(ctx, u.limit)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		result, err := u.inner.Process(timeoutCtx, item)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var unitErr *Error[T]
			if errors.As(out.err, &unitErr) {
				unitErr.Path = append([]Name{u.name}, unitErr.Path...)
				return out.result, unitErr
			}
			return out.result, &Error[T]{
				Err:       out.err,
				InputData: item,
				Path:      []Name{u.name},
				Timestamp: time.Now(),
				Duration:  time.Since(start),
				Timeout:   errors.Is(out.err, context.DeadlineExceeded),
				Canceled:  errors.Is(out.err, context.Canceled),
			}
		}
		return out.result, nil
	case <-timeoutCtx.Done():
		var zero T
		return zero, &Error[T]{
			Err:       timeoutCtx.Err(),
			InputData: item,
			Path:      []Name{u.name},
			Timestamp: time.Now(),
			Duration:  time.Since(start),
			Timeout:   errors.Is(timeoutCtx.Err(), context.DeadlineExceeded),
			Canceled:  errors.Is(timeoutCtx.Err(), context.Canceled),
		}
	}
}
