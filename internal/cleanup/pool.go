package cleanup

import (
	"context"
	"sync"
)

// job is one unit of retention work: deleting a batch of expired rows or
// removing a batch of on-disk artifact files.
type job func(context.Context)

// pool runs a fixed number of goroutines draining a job queue,
// adapted from the teacher's internal/worker.Pool — repurposed here from
// concurrent task execution to concurrent retention-sweep jobs, so the
// run sweep and the artifact sweep of one tick proceed side by side.
type pool struct {
	size   int
	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newPool(parent context.Context, size int) *pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &pool{
		size:   size,
		jobs:   make(chan job, size*2),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *pool) start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.ctx.Done():
					return
				case fn, ok := <-p.jobs:
					if !ok {
						return
					}
					fn(p.ctx)
				}
			}
		}()
	}
}

func (p *pool) submit(fn job) {
	select {
	case <-p.ctx.Done():
	case p.jobs <- fn:
	}
}

func (p *pool) stop() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}
