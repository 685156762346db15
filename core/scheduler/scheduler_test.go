package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"card-inventory/core/scheduler"
	"card-inventory/core/worker"

	"github.com/stretchr/testify/assert"
)

func TestSchedule(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(worker.Inline{}, nil)

	s.Schedule(5*time.Millisecond, worker.Func("tick", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestSchedule_Disabled(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(worker.Inline{}, nil)
	s.Schedule(0, worker.Func("never", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	assert.Zero(t, runs.Load())
}
