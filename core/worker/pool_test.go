package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"card-inventory/core/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ProcessesJobs(t *testing.T) {
	p := worker.NewPool(3, 10, nil)
	p.Start()
	defer p.Stop()

	var (
		wg    sync.WaitGroup
		count atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Enqueue(worker.Func("count", func(ctx context.Context) error {
			defer wg.Done()
			count.Add(1)
			return nil
		})))
	}
	wg.Wait()
	assert.Equal(t, int32(10), count.Load())
}

func TestPool_SurvivesFailuresAndPanics(t *testing.T) {
	p := worker.NewPool(1, 3, nil)
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	require.NoError(t, p.Enqueue(worker.Func("fail", func(ctx context.Context) error { return errors.New("boom") })))
	require.NoError(t, p.Enqueue(worker.Func("panic", func(ctx context.Context) error { panic("boom") })))
	require.NoError(t, p.Enqueue(worker.Func("ok", func(ctx context.Context) error { close(done); return nil })))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive failing jobs")
	}
}

func TestPool_QueueFullAndStopped(t *testing.T) {
	p := worker.NewPool(1, 1, nil)

	noop := worker.Func("noop", func(ctx context.Context) error { return nil })
	require.NoError(t, p.Enqueue(noop))
	assert.ErrorIs(t, p.Enqueue(noop), worker.ErrQueueFull)

	p.Stop()
	assert.ErrorIs(t, p.Enqueue(noop), worker.ErrStopped)
}

func TestInline(t *testing.T) {
	ran := false
	err := worker.Inline{}.Enqueue(worker.Func("inline", func(ctx context.Context) error {
		ran = true
		return errors.New("ignored")
	}))
	assert.NoError(t, err)
	assert.True(t, ran)
}
