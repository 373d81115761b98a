package engine

import (
	"context"
	"sync"
)

// Pool bounds the number of provider executions running at once. Submission
// never blocks the caller; the job waits for a slot inside its own goroutine.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a pool allowing maxWorkers concurrent jobs.
func NewPool(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Pool{sem: make(chan struct{}, maxWorkers)}
}

// Submit schedules fn on the pool. The job is skipped if ctx is cancelled
// before a slot frees up.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			fn(ctx)
		case <-ctx.Done():
		}
	}()
}

// Wait blocks until all submitted jobs have finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
