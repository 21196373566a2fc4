package unitz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Wrap factory.
const (
	// Metrics.
	WrapGetsTotal        = metricz.Key("wrap.gets.total")
	WrapGetFailuresTotal = metricz.Key("wrap.get.failures.total")
	WrapUnitsTotal       = metricz.Key("wrap.units.total")
	WrapInitsTotal       = metricz.Key("wrap.inits.total")
	WrapCompletesTotal   = metricz.Key("wrap.completes.total")
	WrapGetDurationMs    = metricz.Key("wrap.get.duration.ms")

	// Spans.
	WrapGetSpan      = tracez.Key("wrap.get")
	WrapInitSpan     = tracez.Key("wrap.init")
	WrapCompleteSpan = tracez.Key("wrap.complete")

	// Tags.
	WrapTagFactory = tracez.Tag("wrap.factory")
	WrapTagCount   = tracez.Tag("wrap.count")
	WrapTagSuccess = tracez.Tag("wrap.success")
	WrapTagError   = tracez.Tag("wrap.error")

	// Hook event keys.
	WrapEventUnitsProduced = hookz.Key("wrap.units_produced")
	WrapEventInit          = hookz.Key("wrap.init")
	WrapEventComplete      = hookz.Key("wrap.complete")
)

// Wrap construction errors.
var (
	ErrNilFactory   = errors.New("inner factory is nil")
	ErrNilTransform = errors.New("unit transform is nil")
)

// WrapEvent represents a decorating factory lifecycle event.
// This is emitted via hookz when units are produced and when lifecycle
// calls are forwarded, providing visibility into stage deployment without
// altering the forwarding contract.
type WrapEvent struct {
	Name      Name          // Decorating factory name
	Inner     Name          // Inner factory name
	Count     int           // Requested unit count (for units_produced)
	Success   bool          // Whether the forwarded call succeeded
	Error     error         // Error returned by the inner factory, if any
	Failure   error         // Terminating failure forwarded to Complete
	Duration  time.Duration // How long the forwarded call took
	Timestamp time.Time     // When the event occurred
}

// Wrap decorates an inner Factory with a per-unit Transform. It delegates
// Get to the inner factory, applies the transform to every produced unit in
// order, and forwards Init and Complete unchanged - making it a drop-in
// substitute for the factory it wraps.
//
// Wrap introduces no lifecycle events of its own and swallows none: each
// lifecycle call on the decorator triggers exactly one identical call on the
// inner factory, in the order received. Errors from the inner factory
// propagate verbatim, unwrapped.
//
// Because Wrap itself satisfies Factory, decorators stack: a Wrap can be the
// inner factory of another Wrap, with the innermost transform applied first
// to each unit. Use Stack to build such chains in one call.
//
// Wrap is immutable after construction and holds no resources beyond the two
// references it composes. It performs no locking; concurrent Get calls are
// safe exactly when the inner factory and the transform are safe for
// concurrent invocation.
//
// Example:
//
//	metered := unitz.NewInstrument[Order]("orders")
//	factory, err := unitz.NewWrap("orders-stage", innerFactory, metered.Transform())
//	if err != nil {
//	    return err
//	}
//	// factory now yields instrumented units and forwards lifecycle
//	// calls to innerFactory untouched.
//
// # Observability
//
// Wrap provides observability through metrics, tracing, and events. All of
// it is additive: nothing recorded here changes what the caller or the inner
// factory sees.
//
// Metrics:
//   - wrap.gets.total: Counter of Get calls
//   - wrap.get.failures.total: Counter of Get calls the inner factory failed
//   - wrap.units.total: Counter of units decorated
//   - wrap.inits.total: Counter of forwarded Init calls
//   - wrap.completes.total: Counter of forwarded Complete calls
//   - wrap.get.duration.ms: Gauge of last Get duration
//
// Traces:
//   - wrap.get: Span covering delegation and per-unit transformation
//   - wrap.init: Span covering the forwarded Init call
//   - wrap.complete: Span covering the forwarded Complete call
//
// Events (via hooks):
//   - wrap.units_produced: Fired after each Get, success or failure
//   - wrap.init: Fired after Init is forwarded
//   - wrap.complete: Fired after Complete is forwarded
//
// Example with hooks:
//
//	factory.OnUnitsProduced(func(ctx context.Context, event unitz.WrapEvent) error {
//	    if !event.Success {
//	        alert.Warn("stage %s failed to deploy: %v", event.Name, event.Error)
//	    }
//	    return nil
//	})
type Wrap[T any] struct {
	inner     Factory[T]
	transform Transform[T]
	name      Name

	// Observability
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[WrapEvent]
}

// NewWrap creates a decorating factory around inner, applying transform to
// every unit inner produces. It fails immediately if either reference is
// nil; a half-built decorator is the one misuse that cannot be surfaced
// later without changing forwarding behavior.
func NewWrap[T any](name Name, inner Factory[T], transform Transform[T]) (*Wrap[T], error) {
	if inner == nil {
		return nil, ErrNilFactory
	}
	if transform == nil {
		return nil, ErrNilTransform
	}

	// Initialize observability
	metrics := metricz.New()
	metrics.Counter(WrapGetsTotal)
	metrics.Counter(WrapGetFailuresTotal)
	metrics.Counter(WrapUnitsTotal)
	metrics.Counter(WrapInitsTotal)
	metrics.Counter(WrapCompletesTotal)
	metrics.Gauge(WrapGetDurationMs)

	return &Wrap[T]{
		name:      name,
		inner:     inner,
		transform: transform,
		metrics:   metrics,
		tracer:    tracez.New(),
		hooks:     hookz.New[WrapEvent](),
	}, nil
}

// Get implements the Factory interface. It invokes the inner factory's Get,
// then applies the transform to each returned unit preserving relative
// order. On success the returned slice has exactly count units, each the
// transform of the corresponding inner unit, in a slice the decorator does
// not retain.
//
// If the inner factory fails, its error is returned verbatim with no units
// and no fabricated lifecycle calls. If the transform panics on the k-th
// unit, the panic propagates and no unit past k is transformed.
func (w *Wrap[T]) Get(count int) ([]Unit[T], error) {
	ctx, span := w.tracer.StartSpan(context.Background(), WrapGetSpan)
	span.SetTag(WrapTagFactory, string(w.inner.Name()))
	span.SetTag(WrapTagCount, fmt.Sprintf("%d", count))
	defer span.Finish()

	w.metrics.Counter(WrapGetsTotal).Inc()
	start := time.Now()

	units, err := w.inner.Get(count)
	if err != nil {
		w.metrics.Counter(WrapGetFailuresTotal).Inc()
		span.SetTag(WrapTagSuccess, "false")
		span.SetTag(WrapTagError, err.Error())

		_ = w.hooks.Emit(ctx, WrapEventUnitsProduced, WrapEvent{ //nolint:errcheck
			Name:      w.name,
			Inner:     w.inner.Name(),
			Count:     count,
			Success:   false,
			Error:     err,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		})

		// Propagated verbatim: no units, no wrapping, no lifecycle fabrication.
		return nil, err
	}

	decorated := make([]Unit[T], len(units))
	for i, unit := range units {
		decorated[i] = w.transform(unit)
		w.metrics.Counter(WrapUnitsTotal).Inc()
	}

	elapsed := time.Since(start)
	w.metrics.Gauge(WrapGetDurationMs).Set(float64(elapsed.Milliseconds()))
	span.SetTag(WrapTagSuccess, "true")

	_ = w.hooks.Emit(ctx, WrapEventUnitsProduced, WrapEvent{ //nolint:errcheck
		Name:      w.name,
		Inner:     w.inner.Name(),
		Count:     count,
		Success:   true,
		Duration:  elapsed,
		Timestamp: time.Now(),
	})

	return decorated, nil
}

// Init implements the Factory interface. The call is forwarded unchanged to
// the inner factory and its result returned verbatim. The decorator has no
// opinion about the execution context's contents and does not validate call
// ordering - that discipline belongs to the surrounding runtime.
func (w *Wrap[T]) Init(ctx context.Context) error {
	spanCtx, span := w.tracer.StartSpan(ctx, WrapInitSpan)
	span.SetTag(WrapTagFactory, string(w.inner.Name()))
	defer span.Finish()

	w.metrics.Counter(WrapInitsTotal).Inc()
	start := time.Now()

	err := w.inner.Init(ctx)

	if err == nil {
		span.SetTag(WrapTagSuccess, "true")
	} else {
		span.SetTag(WrapTagSuccess, "false")
		span.SetTag(WrapTagError, err.Error())
	}

	_ = w.hooks.Emit(spanCtx, WrapEventInit, WrapEvent{ //nolint:errcheck
		Name:      w.name,
		Inner:     w.inner.Name(),
		Success:   err == nil,
		Error:     err,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})

	return err
}

// Complete implements the Factory interface. The terminating failure (or nil
// on clean shutdown) is forwarded unchanged to the inner factory and the
// inner factory's result returned verbatim. Nothing is retried, logged, or
// suppressed here; whatever the inner factory does is exactly what happens.
func (w *Wrap[T]) Complete(failure error) error {
	ctx, span := w.tracer.StartSpan(context.Background(), WrapCompleteSpan)
	span.SetTag(WrapTagFactory, string(w.inner.Name()))
	defer span.Finish()

	w.metrics.Counter(WrapCompletesTotal).Inc()
	start := time.Now()

	err := w.inner.Complete(failure)

	if err == nil {
		span.SetTag(WrapTagSuccess, "true")
	} else {
		span.SetTag(WrapTagSuccess, "false")
		span.SetTag(WrapTagError, err.Error())
	}

	_ = w.hooks.Emit(ctx, WrapEventComplete, WrapEvent{ //nolint:errcheck
		Name:      w.name,
		Inner:     w.inner.Name(),
		Success:   err == nil,
		Error:     err,
		Failure:   failure,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})

	return err
}

// Name returns the name of this decorating factory.
func (w *Wrap[T]) Name() Name {
	return w.name
}

// Inner returns the wrapped factory.
func (w *Wrap[T]) Inner() Factory[T] {
	return w.inner
}

// Metrics returns the metrics registry for this factory.
func (w *Wrap[T]) Metrics() *metricz.Registry {
	return w.metrics
}

// Tracer returns the tracer for this factory.
func (w *Wrap[T]) Tracer() *tracez.Tracer {
	return w.tracer
}

// Close gracefully shuts down observability components.
func (w *Wrap[T]) Close() error {
	if w.tracer != nil {
		w.tracer.Close()
	}
	w.hooks.Close()
	return nil
}

// OnUnitsProduced registers a handler for when a Get call completes.
// The handler is called asynchronously after units are produced and
// decorated, or after the inner factory fails.
func (w *Wrap[T]) OnUnitsProduced(handler func(context.Context, WrapEvent) error) error {
	_, err := w.hooks.Hook(WrapEventUnitsProduced, handler)
	return err
}

// OnInit registers a handler for when an Init call is forwarded.
// The handler is called asynchronously after the inner factory's Init
// returns.
func (w *Wrap[T]) OnInit(handler func(context.Context, WrapEvent) error) error {
	_, err := w.hooks.Hook(WrapEventInit, handler)
	return err
}

// OnComplete registers a handler for when a Complete call is forwarded.
// The handler is called asynchronously after the inner factory's Complete
// returns.
func (w *Wrap[T]) OnComplete(handler func(context.Context, WrapEvent) error) error {
	_, err := w.hooks.Hook(WrapEventComplete, handler)
	return err
}

// Stack folds transforms into nested Wrap layers around inner. The first
// transform listed becomes the innermost decorator and is therefore applied
// first to each produced unit: Stack(name, inner, f, g) yields g(f(u)) for
// each inner unit u. Each layer is named name[i] after its transform's
// position.
//
// With no transforms, inner is returned unchanged.
func Stack[T any](name Name, inner Factory[T], transforms ...Transform[T]) (Factory[T], error) {
	if inner == nil {
		return nil, ErrNilFactory
	}

	factory := inner
	for i, transform := range transforms {
		wrapped, err := NewWrap(fmt.Sprintf("%s[%d]", name, i), factory, transform)
		if err != nil {
			return nil, err
		}
		factory = wrapped
	}
	return factory, nil
}
