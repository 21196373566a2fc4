// Package unitz provides type-safe, composable factories for the processing
// units of a data pipeline stage, built around transparent decoration.
//
// # Overview
//
// A pipeline runtime assigns each stage a number of parallel execution slots
// and asks a factory for exactly that many processing units. Cross-cutting
// behavior - instrumentation, error wrapping, retries, deadlines - belongs on
// every produced unit, but hard-wiring it into each factory scatters the same
// glue through every stage. unitz solves this with a decorating factory: a
// component that implements the same factory capability as the factory it
// wraps, applying a per-unit transform to everything the inner factory
// produces while forwarding lifecycle calls unchanged.
//
// # Installation
//
//	go get github.com/zoobzio/unitz
//
// Requires Go 1.21+ for generic type constraints.
//
// # Core Concepts
//
// The library is built around two small interfaces:
//
//	type Unit[T any] interface {
//	    Process(context.Context, T) (T, error)
//	    Name() Name
//	}
//
//	type Factory[T any] interface {
//	    Get(count int) ([]Unit[T], error)
//	    Init(ctx context.Context) error
//	    Complete(failure error) error
//	    Name() Name
//	}
//
// A Factory produces exactly count units per Get call and receives two
// lifecycle notifications from the runtime that drives it: Init once before
// any unit processes data, and Complete once after all units finish, carrying
// nil on clean shutdown or the terminating failure otherwise.
//
// A Transform is a pure function from one unit to a replacement unit,
// typically a wrapper adding behavior around the original:
//
//	type Transform[T any] func(Unit[T]) Unit[T]
//
// Wrap ties the two together. It is a Factory that delegates Get to an inner
// factory, applies a Transform to every produced unit in order, and forwards
// Init and Complete verbatim. Because Wrap is itself a Factory, decoration
// stacks to arbitrary depth with no class hierarchy:
//
//	inner, _ := unitz.Produce("parse", newParseUnit)
//	metered := unitz.NewInstrument[Record]("parse-metrics")
//	factory, err := unitz.Stack("parse-stage", inner,
//	    unitz.Recover[Record]("parse-recover"),
//	    unitz.Retry[Record]("parse-retry", 3),
//	    metered.Transform(),
//	)
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "strings"
//	    "github.com/zoobzio/unitz"
//	)
//
//	func main() {
//	    inner, _ := unitz.Produce("upper", func() unitz.Unit[string] {
//	        return unitz.UnitOf("upper", func(_ context.Context, s string) (string, error) {
//	            return strings.ToUpper(s), nil
//	        })
//	    })
//
//	    factory, _ := unitz.NewWrap("upper-stage", inner, unitz.Recover[string]("safe"))
//
//	    runner := unitz.NewRunner("local", factory, 4)
//	    results, err := runner.Run(context.Background(), []string{"a", "b", "c"})
//	    _ = results
//	    _ = err
//	}
//
// # Forwarding Guarantees
//
// Wrap is a pure forwarder. Get returns an error from the inner factory
// verbatim with no units and no fabricated lifecycle calls. Init and Complete
// each trigger exactly one call on the inner factory with identical
// arguments, and return whatever the inner factory returns. Any change in
// failure behavior relative to using the inner factory directly is a defect.
//
// # Error Handling
//
// Units created by adapters and decorator transforms report failures through
// the Error[T] type, which records the path of named components the failure
// passed through, the input that caused it, and timeout/cancellation
// classification:
//
//	result, err := unit.Process(ctx, item)
//	if err != nil {
//	    var unitErr *unitz.Error[Record]
//	    if errors.As(err, &unitErr) {
//	        log.Printf("failed at: %s", strings.Join(unitErr.Path, " -> "))
//	        if unitErr.IsTimeout() {
//	            // Handle deadline overrun specifically
//	        }
//	    }
//	}
//
// Factories are different: errors crossing the Factory interface are never
// wrapped by decorating layers, so the runtime always sees exactly what the
// innermost factory raised.
//
// # Concurrency
//
// Wrap holds no mutable state after construction and performs no locking.
// Its Get is safe for concurrent use exactly when the inner factory and the
// transform are; it makes no additional claim. Units are stateful workers
// owned by whoever holds them - Runner gives each produced unit its own
// goroutine and never shares one between slots.
package unitz

import "context"

// Name is a type alias for unit and factory names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    ParseStageName  Name = "parse-stage"
//	    EnrichStageName Name = "enrich-stage"
//	)
type Name = string

// Unit represents a single processing unit: a stateful worker that performs
// a pipeline stage's per-item computation. Units consume one item and emit
// the processed item or an error.
//
// Units are owned exclusively by whichever component currently holds them.
// A unit is not required to be safe for concurrent use; callers that run
// units in parallel must give each unit its own goroutine.
//
// Key design principles:
//   - Context support for timeout and cancellation
//   - Type safety through generics (no interface{})
//   - Named components for debugging and monitoring
type Unit[T any] interface {
	Process(context.Context, T) (T, error)
	Name() Name
}

// Factory produces the processing units for one pipeline stage and receives
// the stage's lifecycle notifications.
//
// Get(count) returns exactly count units on success. Order of the returned
// units carries no meaning, but the count match is mandatory.
//
// Init is called once by the surrounding runtime before any produced unit
// processes data. Complete is called once after all units finish, with nil
// on clean shutdown or the terminating failure otherwise. Factories do not
// enforce this ordering themselves - the calling runtime owns the
// init -> get -> (units run) -> complete discipline.
//
// A factory is constructed once per stage deployment and discarded after
// Complete returns.
type Factory[T any] interface {
	Get(count int) ([]Unit[T], error)
	Init(ctx context.Context) error
	Complete(failure error) error
	Name() Name
}
