package unitz

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestUnitOf(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		unit := UnitOf("double", func(_ context.Context, n int) (int, error) {
			return n * 2, nil
		})

		if unit.Name() != "double" {
			t.Errorf("expected name 'double', got %s", unit.Name())
		}

		out, err := unit.Process(context.Background(), 21)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != 42 {
			t.Errorf("expected 42, got %d", out)
		}
	})

	t.Run("Error Wrapped With Path", func(t *testing.T) {
		cause := errors.New("bad item")
		unit := UnitOf("validate", func(_ context.Context, _ int) (int, error) {
			return 0, cause
		})

		out, err := unit.Process(context.Background(), 7)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if out != 0 {
			t.Errorf("expected zero value on error, got %d", out)
		}
		if !errors.Is(err, cause) {
			t.Errorf("expected wrapped cause, got %v", err)
		}

		var unitErr *Error[int]
		if !errors.As(err, &unitErr) {
			t.Fatal("expected error of type *Error[int]")
		}
		if len(unitErr.Path) != 1 || unitErr.Path[0] != "validate" {
			t.Errorf("expected path [validate], got %v", unitErr.Path)
		}
		if unitErr.InputData != 7 {
			t.Errorf("expected input data 7, got %d", unitErr.InputData)
		}
	})

	t.Run("Panic Recovered", func(t *testing.T) {
		unit := UnitOf("explode", func(_ context.Context, _ int) (int, error) {
			panic("kaboom")
		})

		out, err := unit.Process(context.Background(), 1)
		if err == nil {
			t.Fatal("expected error from panic, got nil")
		}
		if out != 0 {
			t.Errorf("expected zero value after panic, got %d", out)
		}
		if !strings.Contains(err.Error(), "kaboom") {
			t.Errorf("expected panic message in error, got %v", err)
		}
	})

	t.Run("Cancellation Classified", func(t *testing.T) {
		unit := UnitOf("canceled", func(ctx context.Context, n int) (int, error) {
			return n, ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := unit.Process(ctx, 1)
		var unitErr *Error[int]
		if !errors.As(err, &unitErr) {
			t.Fatal("expected error of type *Error[int]")
		}
		if !unitErr.IsCanceled() {
			t.Error("expected canceled classification")
		}
		if unitErr.IsTimeout() {
			t.Error("did not expect timeout classification")
		}
	})
}

func TestError(t *testing.T) {
	t.Run("Message Includes Path", func(t *testing.T) {
		err := &Error[int]{
			Err:  errors.New("boom"),
			Path: []Name{"outer", "inner"},
		}
		if !strings.Contains(err.Error(), "outer -> inner") {
			t.Errorf("expected path in message, got %s", err.Error())
		}
	})

	t.Run("Timeout Message", func(t *testing.T) {
		err := &Error[int]{
			Err:     context.DeadlineExceeded,
			Path:    []Name{"slow"},
			Timeout: true,
		}
		if !strings.Contains(err.Error(), "timed out") {
			t.Errorf("expected timeout message, got %s", err.Error())
		}
		if !err.IsTimeout() {
			t.Error("expected IsTimeout")
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("root cause")
		err := &Error[int]{Err: cause, Path: []Name{"unit"}}
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to reach the cause")
		}
	})
}
