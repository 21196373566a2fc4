package unitz

import (
	"context"
	"errors"
	"time"
)

// UnitOf creates a Unit from a function that processes one item and may
// return an error. This is the primary adapter for turning per-item logic
// into a processing unit without writing a struct.
//
// The function receives a context for timeout/cancellation support. On
// failure the returned error is wrapped in an *Error[T] carrying the unit's
// name in its path and timeout/cancellation classification. Panics in fn are
// recovered and surfaced the same way.
//
// Example:
//
//	parse := unitz.UnitOf("parse_json", func(ctx context.Context, raw string) (Record, error) {
//	    var rec Record
//	    if err := json.Unmarshal([]byte(raw), &rec); err != nil {
//	        return Record{}, fmt.Errorf("invalid JSON: %w", err)
//	    }
//	    return rec, nil
//	})
func UnitOf[T any](name Name, fn func(context.Context, T) (T, error)) Unit[T] {
	return &unitFunc[T]{name: name, fn: fn}
}

type unitFunc[T any] struct {
	fn   func(context.Context, T) (T, error)
	name Name
}

// Name returns the name of the unit for debugging and error reporting.
func (u *unitFunc[T]) Name() Name {
	return u.name
}

// Process implements the Unit interface.
func (u *unitFunc[T]) Process(ctx context.Context, item T) (result T, err error) {
	defer recoverFromPanic(&result, &err, u.name, item)

	start := time.Now()
	result, ferr := u.fn(ctx, item)
	if ferr != nil {
		var zero T
		return zero, &Error[T]{
			Path:      []Name{u.name},
			InputData: item,
			Err:       ferr,
			Timestamp: time.Now(),
			Duration:  time.Since(start),
			Timeout:   errors.Is(ferr, context.DeadlineExceeded),
			Canceled:  errors.Is(ferr, context.Canceled),
		}
	}
	return result, nil
}
