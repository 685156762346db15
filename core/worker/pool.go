package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"card-inventory/core/metrics"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when the queue has no free slot.
var ErrQueueFull = errors.New("worker queue is full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("worker pool is stopped")

// Job represents a task to be executed by a worker.
type Job interface {
	Name() string
	Process(ctx context.Context) error
}

// Enqueuer accepts jobs for asynchronous execution.
type Enqueuer interface {
	Enqueue(job Job) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                      { return j.name }
func (j funcJob) Process(ctx context.Context) error { return j.fn(ctx) }

// Func adapts a function to a Job.
func Func(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// Pool runs jobs on a fixed number of goroutines.
type Pool struct {
	workers  int
	jobQueue chan Job
	wg       sync.WaitGroup
	quit     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zap.Logger

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a new worker pool.
func NewPool(workers, queueSize int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
		quit:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// Start starts the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobQueue:
			metrics.QueueDepth.Set(float64(len(p.jobQueue)))
			p.run(job)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.JobsProcessed.WithLabelValues(job.Name(), "panic").Inc()
			p.log.Error("Worker job panicked", zap.String("job", job.Name()), zap.Any("panic", r))
		}
	}()

	err := job.Process(p.ctx)
	metrics.JobsProcessed.WithLabelValues(job.Name(), metrics.Result(err)).Inc()
	if err != nil {
		p.log.Warn("Worker job failed", zap.String("job", job.Name()), zap.Error(err))
	}
}

// Enqueue adds a job to the queue without blocking.
func (p *Pool) Enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobQueue <- job:
		metrics.QueueDepth.Set(float64(len(p.jobQueue)))
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, job.Name())
	}
}

// Stop cancels running jobs, stops the workers and waits for them to finish.
// Jobs still queued are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	close(p.quit)
	p.wg.Wait()
}

// Inline runs every job synchronously on Enqueue. Used by CLI commands and tests.
type Inline struct {
	Ctx context.Context
	Log *zap.Logger
}

func (i Inline) Enqueue(job Job) error {
	ctx := i.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := job.Process(ctx)
	if err != nil && i.Log != nil {
		i.Log.Warn("Inline job failed", zap.String("job", job.Name()), zap.Error(err))
	}
	return nil
}
