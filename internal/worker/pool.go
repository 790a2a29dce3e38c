// Package worker provides background processing and bounded fan-out helpers.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/StarfishJ/SceneSound/internal/logging"
)

// Job is a unit of best-effort background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs jobs on a fixed set of goroutines. Jobs never block the caller:
// when the queue is full the job is dropped and logged.
type Pool struct {
	jobs       chan Job
	wg         sync.WaitGroup
	jobTimeout time.Duration
	stopOnce   sync.Once
}

// NewPool creates a pool with the given queue size. jobTimeout bounds each job.
func NewPool(queueSize int, jobTimeout time.Duration) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Second
	}
	return &Pool{jobs: make(chan Job, queueSize), jobTimeout: jobTimeout}
}

// Start launches the worker goroutines.
func (p *Pool) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.process(job)
			}
		}()
	}
}

// Stop closes the queue and waits for queued jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// Submit queues a job without blocking. It reports whether the job was queued.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		logging.Warn().Str("job", job.Name).Msg("worker: queue full, dropping job")
		return false
	}
}

func (p *Pool) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("job", job.Name).Interface("panic", r).Msg("worker: job panicked")
		}
	}()

	if err := job.Run(ctx); err != nil {
		logging.Warn().Err(err).Str("job", job.Name).Msg("worker: job failed")
	}
}
