package scheduler

import (
	"sync"
	"time"

	"card-inventory/core/worker"

	"go.uber.org/zap"
)

// Scheduler enqueues jobs on the worker pool at fixed intervals.
type Scheduler struct {
	queue worker.Enqueuer
	log   *zap.Logger
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// New creates a new scheduler.
func New(queue worker.Enqueuer, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		queue: queue,
		log:   log,
		quit:  make(chan struct{}),
	}
}

// Schedule registers a job to run every interval. A non-positive interval disables it.
// A tick is skipped when the queue is full.
func (s *Scheduler) Schedule(interval time.Duration, job worker.Job) {
	if interval <= 0 {
		s.log.Info("Scheduled job disabled", zap.String("job", job.Name()))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.queue.Enqueue(job); err != nil {
					s.log.Warn("Skipped scheduled job", zap.String("job", job.Name()), zap.Error(err))
				}
			case <-s.quit:
				return
			}
		}
	}()
}

// Stop stops all scheduled jobs.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
}
