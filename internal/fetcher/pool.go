package fetcher

import (
	"context"
	"sync"
)

const defaultPoolSize = 8

// Pool is a long-lived bounded worker pool. Workers are started once and
// shared by every request for the life of the process; at most size jobs
// run at a time and Submit blocks while all workers are busy.
type Pool struct {
	jobs      chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = defaultPoolSize
	}
	p := &Pool{jobs: make(chan func())}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit hands a job to the pool, blocking until a worker accepts it or ctx
// is done. A ctx error means the job was never accepted and will not run.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
