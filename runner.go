package unitz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Runner.
const (
	// Metrics.
	RunnerRunsTotal     = metricz.Key("runner.runs.total")
	RunnerItemsTotal    = metricz.Key("runner.items.total")
	RunnerFailuresTotal = metricz.Key("runner.failures.total")
	RunnerSlotsGauge    = metricz.Key("runner.slots")
	RunnerDurationMs    = metricz.Key("runner.duration.ms")

	// Spans.
	RunnerRunSpan  = tracez.Key("runner.run")
	RunnerSlotSpan = tracez.Key("runner.slot")

	// Tags.
	RunnerTagRunID   = tracez.Tag("runner.run_id")
	RunnerTagFactory = tracez.Tag("runner.factory")
	RunnerTagSlots   = tracez.Tag("runner.slots")
	RunnerTagSlot    = tracez.Tag("runner.slot")
	RunnerTagUnit    = tracez.Tag("runner.unit")
	RunnerTagSuccess = tracez.Tag("runner.success")
	RunnerTagError   = tracez.Tag("runner.error")

	// Hook event keys.
	RunnerEventSlotStarted  = hookz.Key("runner.slot_started")
	RunnerEventSlotFinished = hookz.Key("runner.slot_finished")
	RunnerEventRunComplete  = hookz.Key("runner.run_complete")
)

// ErrUnitCount is returned by Run when a factory violates the count
// invariant: Get(n) must yield exactly n units.
var ErrUnitCount = errors.New("factory returned wrong unit count")

// RunnerEvent represents a runner execution event.
// This is emitted via hookz when execution slots start and finish and when
// a run completes, providing visibility into stage execution.
type RunnerEvent struct {
	Name      Name          // Runner name
	RunID     string        // Unique ID for this Run invocation
	Factory   Name          // Name of the driven factory
	Slot      int           // Slot index (for slot events)
	UnitName  Name          // Name of the slot's unit (for slot events)
	Items     int           // Items processed by the slot, or total for run_complete
	Success   bool          // Whether the slot or run succeeded
	Error     error         // Error if the slot or run failed
	Duration  time.Duration // How long the slot or run took
	Timestamp time.Time     // When the event occurred
}

// Runner drives a Factory through the init -> get -> (units run) -> complete
// lifecycle on one node, with a fixed number of parallel execution slots.
//
// Run asks the factory for exactly one unit per slot, gives each unit its own
// goroutine, and feeds it every slots-th input item. Units are stateful and
// single-owner, so no unit is ever shared between slots. The first unit
// failure cancels the remaining slots and becomes the run's terminal error,
// which Complete receives; on success Complete receives nil. Complete is
// called exactly once per run that passed Init.
//
// Result order follows slot interleaving, not input order. Stages that need
// input order preserved must carry ordering in the data itself.
//
// Runner enforces the count invariant on the factory's behalf: a factory
// returning a different number of units than requested fails the run with
// ErrUnitCount.
//
// Example:
//
//	runner := unitz.NewRunner("ingest-node", factory, 8)
//	results, err := runner.Run(ctx, batch)
//
// # Observability
//
// Runner provides observability through metrics, tracing, and events:
//
// Metrics:
//   - runner.runs.total: Counter of Run invocations
//   - runner.items.total: Counter of items processed successfully
//   - runner.failures.total: Counter of failed runs
//   - runner.slots: Gauge of configured execution slots
//   - runner.duration.ms: Gauge of last run duration
//
// Traces:
//   - runner.run: Parent span for the entire run
//   - runner.slot: Child span per execution slot
//
// Events (via hooks):
//   - runner.slot_started: Fired when a slot's unit begins consuming items
//   - runner.slot_finished: Fired when a slot drains its share or fails
//   - runner.run_complete: Fired after Complete has been forwarded
//
// Example with hooks:
//
//	runner.OnSlotFinished(func(ctx context.Context, event unitz.RunnerEvent) error {
//	    if !event.Success {
//	        alert.Warn("slot %d (%s) failed: %v", event.Slot, event.UnitName, event.Error)
//	    }
//	    return nil
//	})
type Runner[T any] struct {
	factory Factory[T]
	name    Name
	slots   int
	clock   clockz.Clock

	// Observability
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[RunnerEvent]
}

// NewRunner creates a Runner that drives factory with the given number of
// execution slots. Slots below 1 are normalized to 1.
func NewRunner[T any](name Name, factory Factory[T], slots int) *Runner[T] {
	if slots < 1 {
		slots = 1 // Sensible default
	}

	// Initialize observability
	metrics := metricz.New()
	metrics.Counter(RunnerRunsTotal)
	metrics.Counter(RunnerItemsTotal)
	metrics.Counter(RunnerFailuresTotal)
	metrics.Gauge(RunnerSlotsGauge)
	metrics.Gauge(RunnerDurationMs)
	metrics.Gauge(RunnerSlotsGauge).Set(float64(slots))

	return &Runner[T]{
		name:    name,
		factory: factory,
		slots:   slots,
		clock:   clockz.RealClock,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[RunnerEvent](),
	}
}

// Run executes one batch through the factory's units.
//
// Lifecycle: Init is forwarded first; if it fails, Run returns immediately
// and Complete is never fabricated for a factory that never started. After
// a successful Init, Complete is called exactly once with the run's terminal
// error, or nil on success, no matter how the run ends.
//
// Canceling ctx ends the run early. The context's error becomes the run's
// terminal error and is what Complete receives, even when no unit got far
// enough to fail.
func (r *Runner[T]) Run(ctx context.Context, items []T) (results []T, err error) {
	// Handle nil context
	if ctx == nil {
		ctx = context.Background()
	}
	clock := r.getClock()
	runID := uuid.NewString()

	r.metrics.Counter(RunnerRunsTotal).Inc()
	start := clock.Now()

	// Start main span
	ctx, span := r.tracer.StartSpan(ctx, RunnerRunSpan)
	span.SetTag(RunnerTagRunID, runID)
	span.SetTag(RunnerTagFactory, string(r.factory.Name()))
	span.SetTag(RunnerTagSlots, fmt.Sprintf("%d", r.slots))
	defer func() {
		elapsed := clock.Now().Sub(start)
		r.metrics.Gauge(RunnerDurationMs).Set(float64(elapsed.Milliseconds()))

		if err == nil {
			span.SetTag(RunnerTagSuccess, "true")
		} else {
			span.SetTag(RunnerTagSuccess, "false")
			span.SetTag(RunnerTagError, err.Error())
			r.metrics.Counter(RunnerFailuresTotal).Inc()
		}
		span.Finish()

		_ = r.hooks.Emit(ctx, RunnerEventRunComplete, RunnerEvent{ //nolint:errcheck
			Name:      r.name,
			RunID:     runID,
			Factory:   r.factory.Name(),
			Items:     len(items),
			Success:   err == nil,
			Error:     err,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})
	}()

	if ierr := r.factory.Init(ctx); ierr != nil {
		return nil, fmt.Errorf("init %s: %w", r.factory.Name(), ierr)
	}

	// Init succeeded, so Complete is owed exactly once with the terminal
	// error. A Complete failure on an otherwise clean run becomes the
	// run's error.
	defer func() {
		if cerr := r.factory.Complete(err); cerr != nil && err == nil {
			results = nil
			err = fmt.Errorf("complete %s: %w", r.factory.Name(), cerr)
		}
	}()

	units, gerr := r.factory.Get(r.slots)
	if gerr != nil {
		return nil, fmt.Errorf("get %s: %w", r.factory.Name(), gerr)
	}
	if len(units) != r.slots {
		return nil, fmt.Errorf("%w: %s returned %d units for %d slots",
			ErrUnitCount, r.factory.Name(), len(units), r.slots)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	results = make([]T, 0, len(items))
	failures := make(chan error, len(units))

	for slot, unit := range units {
		// Every slots-th item, starting at the slot index.
		var share []T
		for i := slot; i < len(items); i += r.slots {
			share = append(share, items[i])
		}

		wg.Add(1)
		go func(slot int, unit Unit[T], share []T) {
			defer wg.Done()

			slotCtx, slotSpan := r.tracer.StartSpan(runCtx, RunnerSlotSpan)
			slotSpan.SetTag(RunnerTagSlot, fmt.Sprintf("%d", slot))
			slotSpan.SetTag(RunnerTagUnit, string(unit.Name()))
			defer slotSpan.Finish()

			_ = r.hooks.Emit(runCtx, RunnerEventSlotStarted, RunnerEvent{ //nolint:errcheck
				Name:      r.name,
				RunID:     runID,
				Factory:   r.factory.Name(),
				Slot:      slot,
				UnitName:  unit.Name(),
				Items:     len(share),
				Timestamp: time.Now(),
			})

			slotStart := clock.Now()
			processed := 0
			var slotErr error

			for _, item := range share {
				if runCtx.Err() != nil {
					slotErr = runCtx.Err()
					break
				}

				out, perr := unit.Process(slotCtx, item)
				if perr != nil {
					slotErr = perr
					failures <- perr
					cancel() // First failure stops the remaining slots.
					break
				}

				processed++
				r.metrics.Counter(RunnerItemsTotal).Inc()
				mu.Lock()
				results = append(results, out)
				mu.Unlock()
			}

			if slotErr != nil {
				slotSpan.SetTag(RunnerTagSuccess, "false")
				slotSpan.SetTag(RunnerTagError, slotErr.Error())
			} else {
				slotSpan.SetTag(RunnerTagSuccess, "true")
			}

			_ = r.hooks.Emit(runCtx, RunnerEventSlotFinished, RunnerEvent{ //nolint:errcheck
				Name:      r.name,
				RunID:     runID,
				Factory:   r.factory.Name(),
				Slot:      slot,
				UnitName:  unit.Name(),
				Items:     processed,
				Success:   slotErr == nil,
				Error:     slotErr,
				Duration:  clock.Now().Sub(slotStart),
				Timestamp: time.Now(),
			})
		}(slot, unit, share)
	}

	wg.Wait()
	close(failures)

	// First unit failure wins.
	for ferr := range failures {
		if ferr != nil {
			return nil, ferr
		}
	}

	// No unit failed, but the caller may have canceled the run mid-batch.
	// A canceled run dropped items and is not a clean shutdown; ctx is
	// derived from the caller's context, not from the internal cancel.
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	return results, nil
}

// Name returns the name of this runner.
func (r *Runner[T]) Name() Name {
	return r.name
}

// Slots returns the number of execution slots.
func (r *Runner[T]) Slots() int {
	return r.slots
}

// WithClock sets a custom clock for testing.
func (r *Runner[T]) WithClock(clock clockz.Clock) *Runner[T] {
	r.clock = clock
	return r
}

// getClock returns the clock to use.
func (r *Runner[T]) getClock() clockz.Clock {
	if r.clock == nil {
		return clockz.RealClock
	}
	return r.clock
}

// Metrics returns the metrics registry for this runner.
func (r *Runner[T]) Metrics() *metricz.Registry {
	return r.metrics
}

// Tracer returns the tracer for this runner.
func (r *Runner[T]) Tracer() *tracez.Tracer {
	return r.tracer
}

// Close gracefully shuts down observability components.
func (r *Runner[T]) Close() error {
	if r.tracer != nil {
		r.tracer.Close()
	}
	r.hooks.Close()
	return nil
}

// OnSlotStarted registers a handler for when a slot begins consuming items.
// The handler is called asynchronously once per slot per run.
func (r *Runner[T]) OnSlotStarted(handler func(context.Context, RunnerEvent) error) error {
	_, err := r.hooks.Hook(RunnerEventSlotStarted, handler)
	return err
}

// OnSlotFinished registers a handler for when a slot drains its share or
// fails. The handler is called asynchronously once per slot per run.
func (r *Runner[T]) OnSlotFinished(handler func(context.Context, RunnerEvent) error) error {
	_, err := r.hooks.Hook(RunnerEventSlotFinished, handler)
	return err
}

// OnRunComplete registers a handler for when a run finishes and the
// factory's Complete has been forwarded. The handler is called
// asynchronously with aggregate run information.
func (r *Runner[T]) OnRunComplete(handler func(context.Context, RunnerEvent) error) error {
	_, err := r.hooks.Hook(RunnerEventRunComplete, handler)
	return err
}
