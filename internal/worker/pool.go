package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Job is a unit of background work. The context it receives is never
// cancelled by the submitter.
type Job func(ctx context.Context)

// Pool manages a fixed number of worker goroutines fed from a bounded queue.
// When the queue is full a job runs in its own goroutine instead of being
// dropped, so Submit never blocks the caller.
type Pool struct {
	numWorkers int
	jobs       chan Job
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	base    context.Context
}

// NewPool creates a worker pool with the given number of workers and queue size.
func NewPool(numWorkers, queueSize int, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, queueSize),
		logger:     logger,
		base:       context.Background(),
	}
}

// Start launches all worker goroutines. Jobs run with a context that keeps
// ctx's values but not its cancellation; Stop drains the queue.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.base = context.WithoutCancel(ctx)
	p.mu.Unlock()

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers, "queue_size", cap(p.jobs))
}

// Submit queues job, or runs it in a dedicated goroutine if the queue is
// full. After Stop the job runs synchronously.
func (p *Pool) Submit(job Job) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		job(p.base)
		return
	}

	select {
	case p.jobs <- job:
	default:
		p.logger.Warn("worker pool queue full, running job in overflow goroutine")
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			job(p.base)
		}()
	}
}

// Stop closes the queue and waits for queued and in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker is a single goroutine that processes jobs from the channel.
func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		job(p.base)
	}
}
