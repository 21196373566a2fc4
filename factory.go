package unitz

import (
	"context"
	"errors"
)

// Factory construction and usage errors.
var (
	// ErrNilProducer is returned by Produce when the build function is nil.
	ErrNilProducer = errors.New("unit producer function is nil")
	// ErrBadCount is returned by Get when the requested count is below 1.
	ErrBadCount = errors.New("unit count must be at least 1")
)

// Produce creates a stateless Factory that builds each requested unit by
// calling build once per execution slot. Init and Complete are no-ops.
//
// Produce is the simplest way to supply a stage's units when unit
// construction needs no shared setup or teardown. Factories that hold
// resources (connections, buffers, caches) should implement Factory directly
// and release them in Complete.
//
// Example:
//
//	factory, err := unitz.Produce("enrich", func() unitz.Unit[Record] {
//	    return newEnrichUnit(geoDB)
//	})
func Produce[T any](name Name, build func() Unit[T]) (Factory[T], error) {
	if build == nil {
		return nil, ErrNilProducer
	}
	return &produce[T]{name: name, build: build}, nil
}

type produce[T any] struct {
	build func() Unit[T]
	name  Name
}

// Get builds exactly count units, calling the build function once per unit.
func (p *produce[T]) Get(count int) ([]Unit[T], error) {
	if count < 1 {
		return nil, ErrBadCount
	}
	units := make([]Unit[T], count)
	for i := range units {
		units[i] = p.build()
	}
	return units, nil
}

// Init implements the Factory interface. Produce has no shared setup.
func (p *produce[T]) Init(context.Context) error {
	return nil
}

// Complete implements the Factory interface. Produce holds no resources.
func (p *produce[T]) Complete(error) error {
	return nil
}

// Name returns the name of this factory.
func (p *produce[T]) Name() Name {
	return p.name
}
