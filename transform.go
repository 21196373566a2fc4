package unitz

import (
	"context"
)

// Transform maps one processing unit to a replacement unit, typically a
// wrapper adding behavior around the original. Transforms are the per-unit
// half of factory decoration: Wrap applies one Transform to every unit its
// inner factory produces.
//
// A Transform must be total and synchronous. It runs once per produced unit
// during Get, so stacking N decorating layers costs O(N) applications per
// unit and nothing at processing time beyond the wrappers themselves.
//
// Example - a counting wrapper:
//
//	counted := func(inner unitz.Unit[Record]) unitz.Unit[Record] {
//	    return unitz.UnitOf(inner.Name(), func(ctx context.Context, r Record) (Record, error) {
//	        atomic.AddInt64(&seen, 1)
//	        return inner.Process(ctx, r)
//	    })
//	}
type Transform[T any] func(Unit[T]) Unit[T]

// Compose combines transforms into one, applying them left to right: the
// first transform listed wraps the unit first and therefore runs innermost.
// Compose(f, g) yields g(f(u)) for unit u, matching the order the same
// transforms would take when stacked as separate decorating factories.
func Compose[T any](transforms ...Transform[T]) Transform[T] {
	return func(u Unit[T]) Unit[T] {
		for _, transform := range transforms {
			u = transform(u)
		}
		return u
	}
}

// Recover returns a Transform whose produced units convert panics in the
// wrapped unit into *Error[T] failures carrying name in the error path.
// The wrapped unit's normal results and errors pass through untouched.
//
// Use Recover as the innermost layer when a stage runs third-party per-item
// code that may panic, keeping one misbehaving item from tearing down the
// execution slot.
func Recover[T any](name Name) Transform[T] {
	return func(inner Unit[T]) Unit[T] {
		return &recoverUnit[T]{name: name, inner: inner}
	}
}

type recoverUnit[T any] struct {
	inner Unit[T]
	name  Name
}

// Name returns the wrapped unit's name. Recover adds behavior, not identity.
func (u *recoverUnit[T]) Name() Name {
	return u.inner.Name()
}

// Process implements the Unit interface.
func (u *recoverUnit[T]) Process(ctx context.Context, item T) (result T, err error) {
	defer recoverFromPanic(&result, &err, u.name, item)
	return u.inner.Process(ctx, item)
}
