// Package vmexec provides a fixed-size worker pool for blocking VM
// invocations. Request handlers run on cooperative goroutines and must not
// call into the VM directly; they submit the call to a pool worker instead so
// the number of threads pinned by VM execution stays bounded.
package vmexec

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrInvalidLogger = errors.New("invalid logger: must not be nil")
	ErrInvalidSize   = errors.New("invalid pool size: must be greater than 0")

	// ErrStopped is returned by Do after the pool has been stopped.
	ErrStopped = errors.New("vm execution pool is stopped")
)

type task struct {
	ctx context.Context
	fn  func() error
	res chan error
}

// Pool runs submitted functions on a fixed set of worker goroutines.
type Pool struct {
	sugar    *zap.SugaredLogger
	tasks    chan task
	size     int
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewPool creates a pool with the given number of workers and starts them.
func NewPool(size int, sugar *zap.SugaredLogger) (*Pool, error) {
	if sugar == nil {
		return nil, ErrInvalidLogger
	}
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	p := &Pool{
		sugar:   sugar,
		tasks:   make(chan task),
		size:    size,
		stopped: make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	sugar.Infow("vm execution pool started", "workers", size)
	return p, nil
}

// Size returns the number of workers. Admission capacity above this value
// only queues callers; it does not add parallelism.
func (p *Pool) Size() int { return p.size }

// Do runs fn on a pool worker and returns its error. It blocks until a worker
// is free or ctx is cancelled. If ctx is cancelled before a worker picks the
// task up, fn never runs; once fn has started it runs to completion, but Do
// still returns ctx.Err() without waiting for the result.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	t := task{ctx: ctx, fn: fn, res: make(chan error, 1)}
	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrStopped
	}

	select {
	case err := <-t.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the pool down and waits for workers to exit. In-flight tasks run
// to completion; queued submissions fail with ErrStopped. Idempotent.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			if t.ctx.Err() != nil {
				// Caller gave up while the task sat in the queue.
				t.res <- t.ctx.Err()
				continue
			}
			t.res <- t.fn()
		case <-p.stopped:
			return
		}
	}
}
