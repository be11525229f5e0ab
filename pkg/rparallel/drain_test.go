package rparallel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDrainPool_HandlesEnqueuedItems(t *testing.T) {
	var processed int64
	pool := NewDrainPool[int](4, 2, func(ctx context.Context, item int) error {
		atomic.AddInt64(&processed, int64(item))
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 1; i <= 5; i++ {
		pool.Enqueue(i)
	}
	pool.Close()
	pool.Wait()

	if got := atomic.LoadInt64(&processed); got != 15 {
		t.Errorf("expected sum 15, got %d", got)
	}
}

func TestDrainPool_OnError(t *testing.T) {
	var mu sync.Mutex
	var failed []int

	pool := NewDrainPool[int](4, 1, func(ctx context.Context, item int) error {
		if item%2 == 0 {
			return errUnsupportedItem(item)
		}
		return nil
	}, func(item int, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, item)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 1; i <= 4; i++ {
		pool.Enqueue(i)
	}
	pool.Close()
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 2 {
		t.Errorf("expected 2 failures, got %d (%v)", len(failed), failed)
	}
}

func TestDrainPool_StopsOnContextCancel(t *testing.T) {
	pool := NewDrainPool[int](1, 1, func(ctx context.Context, item int) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	pool.Enqueue(1)

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}

type errUnsupportedItem int

func (e errUnsupportedItem) Error() string {
	return "unsupported item"
}
