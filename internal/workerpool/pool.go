// Package workerpool runs jobs on a fixed number of goroutines and
// hands back one result per submitted job.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"commentharvest/pkg/logger"
)

// ErrClosed is returned by Submit after the pool stopped accepting jobs
var ErrClosed = errors.New("worker pool is shutting down")

// Handler processes a single job. It is called for every submitted job,
// including after ctx is cancelled, so it can report the job as skipped.
type Handler[J, R any] func(ctx context.Context, workerID int, job J) R

// Pool manages concurrent workers
type Pool[J, R any] struct {
	numWorkers  int
	jobQueue    chan J
	resultQueue chan R
	wg          sync.WaitGroup
	ctx         context.Context
	handle      Handler[J, R]
	logger      logger.Logger

	closeOnce sync.Once
}

// New creates a pool bound to ctx. numWorkers below 1 is treated as 1.
func New[J, R any](ctx context.Context, numWorkers int, handle Handler[J, R], log logger.Logger) *Pool[J, R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool[J, R]{
		numWorkers:  numWorkers,
		jobQueue:    make(chan J, numWorkers*2),
		resultQueue: make(chan R, numWorkers),
		ctx:         ctx,
		handle:      handle,
		logger:      log,
	}
}

// Start launches the workers
func (p *Pool[J, R]) Start() {
	p.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go func() {
		p.wg.Wait()
		close(p.resultQueue)
	}()
}

// Submit queues a job. It blocks while the queue is full and fails once
// the pool's context is done.
func (p *Pool[J, R]) Submit(job J) error {
	if p.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Close signals that no more jobs will be submitted. Results is closed
// once every queued job has produced its result.
func (p *Pool[J, R]) Close() {
	p.closeOnce.Do(func() { close(p.jobQueue) })
}

// Results yields one value per submitted job. Callers must drain it.
func (p *Pool[J, R]) Results() <-chan R {
	return p.resultQueue
}

// Size returns the number of workers
func (p *Pool[J, R]) Size() int {
	return p.numWorkers
}

func (p *Pool[J, R]) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.resultQueue <- p.handle(p.ctx, id, job)
	}

	p.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}
