package rparallel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWorkerPool_ExecuteFunc(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig())

	inputs := []int{1, 2, 3, 4, 5}
	results := pool.ExecuteFunc(context.Background(), inputs, func(ctx context.Context, input int) (int, error) {
		return input * 2, nil
	})

	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected error for input %d: %v", inputs[i], r.Err)
		}
		if r.Value != inputs[i]*2 {
			t.Errorf("expected %d, got %d", inputs[i]*2, r.Value)
		}
	}
}

func TestWorkerPool_Timeout(t *testing.T) {
	config := DefaultPoolConfig().WithTimeout(20 * time.Millisecond)
	pool := NewWorkerPool[int, int](config)

	inputs := make([]int, 10)
	for i := range inputs {
		inputs[i] = i
	}

	results := pool.ExecuteFunc(context.Background(), inputs, func(ctx context.Context, input int) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return input, nil
		}
	})

	cancelled := 0
	for _, r := range results {
		if r.Err != nil {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Log("warning: no tasks were cancelled by the timeout")
	}
}

func TestForEach(t *testing.T) {
	items := []int{1, 2, 3, 4}
	succeeded, firstErr := ForEach(context.Background(), items, DefaultPoolConfig(), func(ctx context.Context, item int) error {
		if item == 3 {
			return errors.New("boom")
		}
		return nil
	})

	if succeeded != 3 {
		t.Errorf("expected 3 successes, got %d", succeeded)
	}
	if firstErr == nil {
		t.Error("expected a non-nil first error")
	}
}

func TestForEach_Empty(t *testing.T) {
	succeeded, firstErr := ForEach(context.Background(), []int{}, DefaultPoolConfig(), func(ctx context.Context, item int) error {
		t.Fatal("fn should not be called for an empty input")
		return nil
	})
	if succeeded != 0 || firstErr != nil {
		t.Errorf("expected zero-value results for empty input, got (%d, %v)", succeeded, firstErr)
	}
}
