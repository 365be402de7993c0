package async

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineos/accessd/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestRunner_Go(t *testing.T) {
	r := NewRunner(testLogger())

	t.Run("runs the task", func(t *testing.T) {
		done := make(chan struct{})
		r.Go(context.Background(), time.Second, "test", func(ctx context.Context) error {
			close(done)
			return nil
		})
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task never ran")
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		done := make(chan struct{})
		r.Go(context.Background(), time.Second, "test", func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		})
		<-done
		// a follow-up task still runs, so the runner survived the panic
		again := make(chan struct{})
		r.Go(context.Background(), time.Second, "test", func(ctx context.Context) error {
			close(again)
			return nil
		})
		select {
		case <-again:
		case <-time.After(time.Second):
			t.Fatal("runner unusable after panic")
		}
	})

	t.Run("enforces the timeout", func(t *testing.T) {
		expired := make(chan struct{})
		r.Go(context.Background(), 10*time.Millisecond, "test", func(ctx context.Context) error {
			<-ctx.Done()
			close(expired)
			return ctx.Err()
		})
		select {
		case <-expired:
		case <-time.After(time.Second):
			t.Fatal("task context never expired")
		}
	})
}

func TestPool_ProcessesAllTasks(t *testing.T) {
	pool := NewPool(context.Background(), 4, "test", time.Second, testLogger())

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
			return nil
		}))
	}
	wg.Wait()

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, int64(50), atomic.LoadInt64(&n))
}

func TestPool_DrainsQueueOnShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 1, "test", time.Second, testLogger())

	var n int64
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&n, 1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(2*time.Second))
	assert.Equal(t, int64(10), atomic.LoadInt64(&n))
}

func TestPool_RejectsAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2, "test", time.Second, testLogger())
	require.NoError(t, pool.Shutdown(time.Second))

	err := pool.Submit(func(ctx context.Context) error { return nil })
	require.Error(t, err)
}

func TestPool_SurvivesPanicsAndErrors(t *testing.T) {
	pool := NewPool(context.Background(), 2, "test", time.Second, testLogger())

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		panic("boom")
	}))
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		return errors.New("task error")
	}))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(done)
		return nil
	}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped processing after a panic")
	}

	require.NoError(t, pool.Shutdown(time.Second))
}
