package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PoolMetrics counts jobs by outcome. A job that returns an error, such as
// a failed compile pass, counts as failed.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned by Submit after Shutdown.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithPanicHandler is called with the recovered value whenever a job panics.
func WithPanicHandler(fn func(recovered any)) PoolOption {
	return func(p *WorkerPool) { p.onPanic = fn }
}

// WorkerPool runs independent compile passes on at most size goroutines.
type WorkerPool struct {
	slots   chan struct{}
	stop    chan struct{}
	onPanic func(any)

	// mu orders wg.Add against Shutdown's wg.Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	active, completed, failed, panics atomic.Int64
}

// NewWorkerPool creates a pool with the given max concurrency.
// A size below one runs jobs one at a time.
func NewWorkerPool(size int, opts ...PoolOption) *WorkerPool {
	p := &WorkerPool{
		slots: make(chan struct{}, max(size, 1)),
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit starts fn on a free slot. It blocks while the pool is full and
// gives up when ctx is done. Returns ErrPoolShutdown after Shutdown.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-p.stop:
		return ErrPoolShutdown
	default:
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPoolShutdown
	}

	if !p.track() {
		<-p.slots
		return ErrPoolShutdown
	}
	go p.run(ctx, fn)
	return nil
}

// track registers one running job unless the pool closed meanwhile.
func (p *WorkerPool) track() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	p.active.Add(1)
	return true
}

func (p *WorkerPool) run(ctx context.Context, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.failed.Add(1)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
		p.active.Add(-1)
		<-p.slots
		p.wg.Done()
	}()

	if err := fn(ctx); err != nil {
		p.failed.Add(1)
		return
	}
	p.completed.Add(1)
}

// Wait blocks until all submitted work completes.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown rejects further submissions and waits for running jobs.
// Calling it more than once is safe.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stop)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Metrics returns a snapshot of the current pool metrics.
func (p *WorkerPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}
