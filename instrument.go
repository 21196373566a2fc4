package unitz

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Instrument transform.
const (
	// Metrics.
	InstrumentItemsTotal     = metricz.Key("instrument.items.total")
	InstrumentSuccessesTotal = metricz.Key("instrument.successes.total")
	InstrumentFailuresTotal  = metricz.Key("instrument.failures.total")
	InstrumentDurationMs     = metricz.Key("instrument.duration.ms")

	// Spans.
	InstrumentProcessSpan = tracez.Key("instrument.process")

	// Tags.
	InstrumentTagUnit    = tracez.Tag("instrument.unit")
	InstrumentTagSuccess = tracez.Tag("instrument.success")
	InstrumentTagError   = tracez.Tag("instrument.error")

	// Hook event keys.
	InstrumentEventItemProcessed = hookz.Key("instrument.item_processed")
)

// InstrumentEvent represents a single processed item.
// This is emitted via hookz each time an instrumented unit finishes
// processing one item, whether it succeeded or failed.
type InstrumentEvent struct {
	Name      Name          // Instrument name
	UnitName  Name          // Name of the wrapped unit
	Success   bool          // Whether processing succeeded
	Error     error         // Error if processing failed
	Duration  time.Duration // How long the item took
	Timestamp time.Time     // When the event occurred
}

// Instrument produces a Transform that wraps every unit of a stage with
// per-item metrics, tracing, and events. One Instrument is shared by all
// units the transform decorates, so its registry aggregates across the
// stage's execution slots.
//
// Instrumented units are otherwise transparent: results and errors of the
// wrapped unit pass through unchanged, and the decorated unit keeps the
// wrapped unit's name.
//
// Example:
//
//	metered := unitz.NewInstrument[Record]("ingest")
//	factory, err := unitz.NewWrap("ingest-stage", inner, metered.Transform())
//	...
//	processed := metered.Metrics().Counter(unitz.InstrumentItemsTotal).Value()
//
// # Observability
//
// Metrics:
//   - instrument.items.total: Counter of items processed across all units
//   - instrument.successes.total: Counter of items processed successfully
//   - instrument.failures.total: Counter of items that failed
//   - instrument.duration.ms: Gauge of last item duration
//
// Traces:
//   - instrument.process: Span per processed item
//
// Events (via hooks):
//   - instrument.item_processed: Fired after each item, success or failure
//
// Example with hooks:
//
//	metered.OnItemProcessed(func(ctx context.Context, event unitz.InstrumentEvent) error {
//	    if !event.Success {
//	        alert.Warn("unit %s failed: %v", event.UnitName, event.Error)
//	    }
//	    return nil
//	})
type Instrument[T any] struct {
	name  Name
	clock clockz.Clock

	// Observability
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[InstrumentEvent]
}

// NewInstrument creates an Instrument with the given name.
func NewInstrument[T any](name Name) *Instrument[T] {
	// Initialize observability
	metrics := metricz.New()
	metrics.Counter(InstrumentItemsTotal)
	metrics.Counter(InstrumentSuccessesTotal)
	metrics.Counter(InstrumentFailuresTotal)
	metrics.Gauge(InstrumentDurationMs)

	return &Instrument[T]{
		name:    name,
		clock:   clockz.RealClock,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[InstrumentEvent](),
	}
}

// Transform returns the per-unit Transform this Instrument applies.
// Every unit passed through it reports into this Instrument's registry.
func (in *Instrument[T]) Transform() Transform[T] {
	return func(inner Unit[T]) Unit[T] {
		return &instrumentedUnit[T]{owner: in, inner: inner}
	}
}

// Name returns the name of this instrument.
func (in *Instrument[T]) Name() Name {
	return in.name
}

// WithClock sets a custom clock for testing.
func (in *Instrument[T]) WithClock(clock clockz.Clock) *Instrument[T] {
	in.clock = clock
	return in
}

// getClock returns the clock to use.
func (in *Instrument[T]) getClock() clockz.Clock {
	if in.clock == nil {
		return clockz.RealClock
	}
	return in.clock
}

// Metrics returns the metrics registry for this instrument.
func (in *Instrument[T]) Metrics() *metricz.Registry {
	return in.metrics
}

// Tracer returns the tracer for this instrument.
func (in *Instrument[T]) Tracer() *tracez.Tracer {
	return in.tracer
}

// Close gracefully shuts down observability components.
func (in *Instrument[T]) Close() error {
	if in.tracer != nil {
		in.tracer.Close()
	}
	in.hooks.Close()
	return nil
}

// OnItemProcessed registers a handler for each processed item.
// The handler is called asynchronously after an instrumented unit finishes
// one item, whether it succeeded or failed.
func (in *Instrument[T]) OnItemProcessed(handler func(context.Context, InstrumentEvent) error) error {
	_, err := in.hooks.Hook(InstrumentEventItemProcessed, handler)
	return err
}

type instrumentedUnit[T any] struct {
	owner *Instrument[T]
	inner Unit[T]
}

// Name returns the wrapped unit's name. Instrumentation adds behavior,
// not identity.
func (u *instrumentedUnit[T]) Name() Name {
	return u.inner.Name()
}

// Process implements the Unit interface. The wrapped unit's result and
// error pass through unchanged.
func (u *instrumentedUnit[T]) Process(ctx context.Context, item T) (T, error) {
	clock := u.owner.getClock()

	spanCtx, span := u.owner.tracer.StartSpan(ctx, InstrumentProcessSpan)
	span.SetTag(InstrumentTagUnit, string(u.inner.Name()))
	defer span.Finish()

	u.owner.metrics.Counter(InstrumentItemsTotal).Inc()
	start := clock.Now()

	result, err := u.inner.Process(spanCtx, item)
	elapsed := clock.Now().Sub(start)

	u.owner.metrics.Gauge(InstrumentDurationMs).Set(float64(elapsed.Milliseconds()))
	if err == nil {
		u.owner.metrics.Counter(InstrumentSuccessesTotal).Inc()
		span.SetTag(InstrumentTagSuccess, "true")
	} else {
		u.owner.metrics.Counter(InstrumentFailuresTotal).Inc()
		span.SetTag(InstrumentTagSuccess, "false")
		span.SetTag(InstrumentTagError, err.Error())
	}

	_ = u.owner.hooks.Emit(ctx, InstrumentEventItemProcessed, InstrumentEvent{ //nolint:errcheck
		Name:      u.owner.name,
		UnitName:  u.inner.Name(),
		Success:   err == nil,
		Error:     err,
		Duration:  elapsed,
		Timestamp: time.Now(),
	})

	return result, err
}
