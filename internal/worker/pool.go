// Package worker provides a bounded pool for fanning inference jobs out
// within one study. Results are gathered at a single join barrier; a
// failing job never cancels its siblings.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work issued against the inference service.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job.
type Result interface {
	Err() error
}

// Pool runs jobs with a fixed number of workers. Workers append results to
// an internal collector so submission never deadlocks on a full results
// channel, regardless of how many jobs are queued ahead of the barrier.
type Pool struct {
	workers  int
	jobQueue chan Job

	mu      sync.Mutex
	results []Result
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers:  workers,
		jobQueue: make(chan Job, workers*2),
	}
}

// Start launches the workers. Each worker drains the job queue until it is
// closed by Wait.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobQueue {
				result := job.Execute(ctx)
				p.mu.Lock()
				p.results = append(p.results, result)
				p.mu.Unlock()
			}
		}()
	}
}

// Submit enqueues a job. Must not be called after Wait.
func (p *Pool) Submit(job Job) {
	p.jobQueue <- job
}

// Wait closes the queue, blocks until every submitted job has finished,
// and returns all results. This is the collection barrier: per-item errors
// surface here as Results carrying an error, nowhere else. Completion
// order is race-determined; callers re-sort before persisting.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	return p.results
}
