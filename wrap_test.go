package unitz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockFactory records every call it receives and fails on demand.
// The zero value produces passthrough int units named unit-<i>.
type mockFactory struct {
	getErr      error
	initErr     error
	completeErr error
	build       func(i int) Unit[int]
	mu          sync.Mutex
	getCalls    []int
	initCalls   []context.Context
	completes   []error
	order       []string
	miscount    int // added to the produced unit count to violate the invariant
}

func (m *mockFactory) Get(count int) ([]Unit[int], error) {
	m.mu.Lock()
	m.getCalls = append(m.getCalls, count)
	m.order = append(m.order, "get")
	m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	units := make([]Unit[int], count+m.miscount)
	for i := range units {
		if m.build != nil {
			units[i] = m.build(i)
			continue
		}
		units[i] = UnitOf(fmt.Sprintf("unit-%d", i), func(_ context.Context, n int) (int, error) {
			return n, nil
		})
	}
	return units, nil
}

func (m *mockFactory) Init(ctx context.Context) error {
	m.mu.Lock()
	m.initCalls = append(m.initCalls, ctx)
	m.order = append(m.order, "init")
	m.mu.Unlock()
	return m.initErr
}

func (m *mockFactory) Complete(failure error) error {
	m.mu.Lock()
	m.completes = append(m.completes, failure)
	m.order = append(m.order, "complete")
	m.mu.Unlock()
	return m.completeErr
}

func (m *mockFactory) Name() Name {
	return "mock"
}

// identity is a Transform that returns units unchanged.
func identity(u Unit[int]) Unit[int] { return u }

// wrapping returns a Transform whose units apply fn to the inner unit's output.
func wrapping(fn func(int) int) Transform[int] {
	return func(inner Unit[int]) Unit[int] {
		return UnitOf(inner.Name(), func(ctx context.Context, n int) (int, error) {
			out, err := inner.Process(ctx, n)
			if err != nil {
				return 0, err
			}
			return fn(out), nil
		})
	}
}

func TestWrap_NewWrap(t *testing.T) {
	t.Run("Valid Construction", func(t *testing.T) {
		inner := &mockFactory{}
		w, err := NewWrap[int]("test-wrap", inner, identity)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.Name() != "test-wrap" {
			t.Errorf("expected name 'test-wrap', got %s", w.Name())
		}
		if w.Inner() != Factory[int](inner) {
			t.Error("expected Inner() to return the wrapped factory")
		}
	})

	t.Run("Nil Factory", func(t *testing.T) {
		_, err := NewWrap[int]("test-wrap", nil, identity)
		if !errors.Is(err, ErrNilFactory) {
			t.Errorf("expected ErrNilFactory, got %v", err)
		}
	})

	t.Run("Nil Transform", func(t *testing.T) {
		_, err := NewWrap[int]("test-wrap", &mockFactory{}, nil)
		if !errors.Is(err, ErrNilTransform) {
			t.Errorf("expected ErrNilTransform, got %v", err)
		}
	})
}

func TestWrap_Get_CountMatch(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("test-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for count := 1; count <= 8; count++ {
		units, err := w.Get(count)
		if err != nil {
			t.Fatalf("Get(%d): unexpected error: %v", count, err)
		}
		if len(units) != count {
			t.Errorf("Get(%d): expected %d units, got %d", count, count, len(units))
		}
	}

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.getCalls) != 8 {
		t.Errorf("expected 8 delegated Get calls, got %d", len(inner.getCalls))
	}
}

func TestWrap_Get_TransformsInOrder(t *testing.T) {
	inner := &mockFactory{}

	var mu sync.Mutex
	var seen []Name
	recording := func(u Unit[int]) Unit[int] {
		mu.Lock()
		seen = append(seen, u.Name())
		mu.Unlock()
		return u
	}

	w, err := NewWrap[int]("test-wrap", inner, recording)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := w.Get(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Name{"unit-0", "unit-1", "unit-2", "unit-3"}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("expected %d transform applications, got %d", len(want), len(seen))
	}
	for i, name := range want {
		if seen[i] != name {
			t.Errorf("position %d: expected transform of %s, got %s", i, name, seen[i])
		}
	}
}

func TestWrap_Get_AppliesTransform(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("test-wrap", inner, wrapping(func(n int) int { return n * 2 }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	units, err := w.Get(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, unit := range units {
		out, err := unit.Process(context.Background(), 5)
		if err != nil {
			t.Fatalf("unit %d: unexpected error: %v", i, err)
		}
		if out != 10 {
			t.Errorf("unit %d: expected 10, got %d", i, out)
		}
	}
}

func TestWrap_Get_InnerErrorVerbatim(t *testing.T) {
	sentinel := errors.New("deploy failed")
	inner := &mockFactory{getErr: sentinel}
	w, err := NewWrap[int]("test-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	units, err := w.Get(3)
	if err != sentinel {
		t.Errorf("expected the inner factory's error verbatim, got %v", err)
	}
	if units != nil {
		t.Errorf("expected no units on failure, got %d", len(units))
	}

	// No lifecycle fabrication on failure.
	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.initCalls) != 0 {
		t.Errorf("expected no Init calls, got %d", len(inner.initCalls))
	}
	if len(inner.completes) != 0 {
		t.Errorf("expected no Complete calls, got %d", len(inner.completes))
	}
}

func TestWrap_Get_TransformPanicStopsWork(t *testing.T) {
	inner := &mockFactory{}

	applied := 0
	exploding := func(u Unit[int]) Unit[int] {
		if applied == 2 {
			panic("transform blew up")
		}
		applied++
		return u
	}

	w, err := NewWrap[int]("test-wrap", inner, exploding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected transform panic to propagate")
			}
		}()
		_, _ = w.Get(5)
	}()

	if applied != 2 {
		t.Errorf("expected no unit past the failing index to be transformed, got %d applications", applied)
	}
}

func TestWrap_Get_ReturnsFreshSlice(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("test-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := w.Get(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := w.Get(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating one result must not affect another - the decorator retains
	// nothing between calls.
	first[0] = nil
	if second[0] == nil {
		t.Error("expected Get results to be independent slices")
	}
}

func TestWrap_Init_Forwards(t *testing.T) {
	t.Run("Identical Context", func(t *testing.T) {
		inner := &mockFactory{}
		w, err := NewWrap[int]("test-wrap", inner, identity)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		type ctxKey struct{}
		ctx := context.WithValue(context.Background(), ctxKey{}, "slot-group-7")

		if err := w.Init(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		inner.mu.Lock()
		defer inner.mu.Unlock()
		if len(inner.initCalls) != 1 {
			t.Fatalf("expected exactly one forwarded Init, got %d", len(inner.initCalls))
		}
		if inner.initCalls[0] != ctx {
			t.Error("expected the identical context to be forwarded")
		}
	})

	t.Run("Error Verbatim", func(t *testing.T) {
		sentinel := errors.New("init failed")
		inner := &mockFactory{initErr: sentinel}
		w, err := NewWrap[int]("test-wrap", inner, identity)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := w.Init(context.Background()); err != sentinel {
			t.Errorf("expected the inner factory's error verbatim, got %v", err)
		}
	})
}

func TestWrap_Complete_Forwards(t *testing.T) {
	t.Run("Nil On Clean Shutdown", func(t *testing.T) {
		inner := &mockFactory{}
		w, err := NewWrap[int]("test-wrap", inner, identity)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := w.Complete(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		inner.mu.Lock()
		defer inner.mu.Unlock()
		if len(inner.completes) != 1 {
			t.Fatalf("expected exactly one forwarded Complete, got %d", len(inner.completes))
		}
		if inner.completes[0] != nil {
			t.Errorf("expected nil failure forwarded, got %v", inner.completes[0])
		}
	})

	t.Run("Identical Failure", func(t *testing.T) {
		inner := &mockFactory{}
		w, err := NewWrap[int]("test-wrap", inner, identity)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cause := errors.New("stage torn down")
		if err := w.Complete(cause); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		inner.mu.Lock()
		defer inner.mu.Unlock()
		if len(inner.completes) != 1 {
			t.Fatalf("expected exactly one forwarded Complete, got %d", len(inner.completes))
		}
		if inner.completes[0] != cause {
			t.Errorf("expected the identical failure forwarded, got %v", inner.completes[0])
		}
	})

	t.Run("Result Verbatim", func(t *testing.T) {
		sentinel := errors.New("release failed")
		inner := &mockFactory{completeErr: sentinel}
		w, err := NewWrap[int]("test-wrap", inner, identity)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := w.Complete(nil); err != sentinel {
			t.Errorf("expected the inner factory's error verbatim, got %v", err)
		}
	})
}

func TestWrap_LifecycleOrder(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("test-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Get(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Complete(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"init", "get", "complete"}
	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.order) != len(want) {
		t.Fatalf("expected %d forwarded calls, got %d: %v", len(want), len(inner.order), inner.order)
	}
	for i, call := range want {
		if inner.order[i] != call {
			t.Errorf("call %d: expected %s, got %s", i, call, inner.order[i])
		}
	}
}

func TestWrap_Stacking(t *testing.T) {
	t.Run("Innermost Transform First", func(t *testing.T) {
		inner := &mockFactory{}

		double, err := NewWrap[int]("double", inner, wrapping(func(n int) int { return n * 2 }))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		plusThree, err := NewWrap[int]("plus-three", double, wrapping(func(n int) int { return n + 3 }))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		units, err := plusThree.Get(1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// g(f(u)): double first, then plus three.
		out, err := units[0].Process(context.Background(), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != 13 {
			t.Errorf("expected 13, got %d", out)
		}
	})

	t.Run("Lifecycle Reaches Innermost", func(t *testing.T) {
		inner := &mockFactory{}

		outer, err := Stack[int]("stack", inner,
			wrapping(func(n int) int { return n * 2 }),
			wrapping(func(n int) int { return n + 3 }),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := outer.Init(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := outer.Complete(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		inner.mu.Lock()
		defer inner.mu.Unlock()
		if len(inner.initCalls) != 1 || len(inner.completes) != 1 {
			t.Errorf("expected one Init and one Complete at the innermost factory, got %d and %d",
				len(inner.initCalls), len(inner.completes))
		}
	})
}

func TestWrap_Stack(t *testing.T) {
	t.Run("Transform Order", func(t *testing.T) {
		inner := &mockFactory{}
		factory, err := Stack[int]("stack", inner,
			wrapping(func(n int) int { return n * 2 }),
			wrapping(func(n int) int { return n + 3 }),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		units, err := factory.Get(1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, err := units[0].Process(context.Background(), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != 13 {
			t.Errorf("expected 13, got %d", out)
		}
	})

	t.Run("No Transforms Returns Inner", func(t *testing.T) {
		inner := &mockFactory{}
		factory, err := Stack[int]("stack", inner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if factory != Factory[int](inner) {
			t.Error("expected inner factory back when no transforms are stacked")
		}
	})

	t.Run("Nil Inner", func(t *testing.T) {
		_, err := Stack[int]("stack", nil, identity)
		if !errors.Is(err, ErrNilFactory) {
			t.Errorf("expected ErrNilFactory, got %v", err)
		}
	})
}

func TestWrap_Metrics(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("test-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := w.Get(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Complete(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := w.Metrics().Counter(WrapGetsTotal).Value(); got != 1 {
		t.Errorf("expected 1 Get recorded, got %f", got)
	}
	if got := w.Metrics().Counter(WrapUnitsTotal).Value(); got != 3 {
		t.Errorf("expected 3 units recorded, got %f", got)
	}
	if got := w.Metrics().Counter(WrapInitsTotal).Value(); got != 1 {
		t.Errorf("expected 1 Init recorded, got %f", got)
	}
	if got := w.Metrics().Counter(WrapCompletesTotal).Value(); got != 1 {
		t.Errorf("expected 1 Complete recorded, got %f", got)
	}
}

func TestWrap_Hooks(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("test-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	var mu sync.Mutex
	var events []WrapEvent
	if err := w.OnUnitsProduced(func(_ context.Context, event WrapEvent) error {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := w.Get(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wait for async hooks
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 units_produced event, got %d", len(events))
	}
	if events[0].Count != 2 {
		t.Errorf("expected count 2 in event, got %d", events[0].Count)
	}
	if !events[0].Success {
		t.Error("expected success in event")
	}
	if events[0].Inner != "mock" {
		t.Errorf("expected inner factory name 'mock', got %s", events[0].Inner)
	}
}

func TestWrap_Close(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("test-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWrap_ConcurrentGet(t *testing.T) {
	inner := &mockFactory{}
	w, err := NewWrap[int]("concurrent-wrap", inner, identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			units, err := w.Get(4)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if len(units) != 4 {
				t.Errorf("expected 4 units, got %d", len(units))
			}
		}()
	}
	wg.Wait()
}
