package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/hamed0406/uptimemon/internal/domain"
)

type job struct {
	monitor      domain.Monitor
	dispatchedAt time.Time
	done         func()
}

// pool is a fixed set of workers reading from a bounded queue.
type pool struct {
	workers int
	jobs    chan job
	run     func(context.Context, job)
	wg      sync.WaitGroup
}

func newPool(workers, queue int, run func(context.Context, job)) *pool {
	return &pool{
		workers: workers,
		jobs:    make(chan job, queue),
		run:     run,
	}
}

func (p *pool) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(ctx, j)
			}
		}()
	}
}

// trySubmit enqueues without blocking; false means the queue is full.
func (p *pool) trySubmit(j job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// close stops intake. Queued jobs still run.
func (p *pool) close() { close(p.jobs) }

// wait blocks until every worker has exited or timeout passes.
// A zero timeout waits indefinitely.
func (p *pool) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
