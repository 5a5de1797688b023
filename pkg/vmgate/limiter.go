// Package vmgate gates every simulated transaction execution served by the
// read-API layer. A Limiter bounds how many VM executions may be admitted at
// once; its paired Barrier drives the graceful-shutdown protocol, stopping new
// admissions and waiting for the in-flight ones to drain.
package vmgate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/seqlabs/vmsandbox/pkg/metrics"
	"github.com/seqlabs/vmsandbox/pkg/vmexec"
)

var (
	ErrInvalidCapacity = errors.New("invalid capacity: must be greater than 0")
	ErrInvalidLogger   = errors.New("invalid logger: must not be nil")
	ErrInvalidPool     = errors.New("invalid pool: must not be nil")

	// ErrClosed is returned by Acquire once the paired Barrier has closed the
	// limiter. Callers must treat it as the service draining and reject new
	// work gracefully, not as an internal failure.
	ErrClosed = errors.New("vm concurrency limiter is closed")
)

// Acquisitions that wait longer than this are logged.
const slowAcquireThreshold = 10 * time.Millisecond

// shared is the counting resource a Limiter and its Barrier both reference.
// The semaphore is the only synchronization mechanism; inUse mirrors the
// number of outstanding permits because semaphore.Weighted exposes no count.
type shared struct {
	sem       *semaphore.Weighted
	capacity  int64
	inUse     atomic.Int64
	closed    atomic.Bool
	closedCh  chan struct{}
	closeOnce sync.Once
}

// Limiter limits the number of concurrent VM executions so the process cannot
// be overloaded with VM calls. Every method that executes VM code acquires a
// Permit at its topmost level, before any storage access or VM instantiation.
//
// The actual execution parallelism is the minimum of this limiter's capacity
// and the size of the vmexec pool the permits carry. A capacity above the pool
// size only admits callers into the pool's queue; it does not add parallelism.
type Limiter struct {
	shared  *shared
	pool    *vmexec.Pool
	sugar   *zap.SugaredLogger
	metrics *metrics.Metrics
}

// Barrier closes the Limiter it was constructed with so that no new permits
// are issued, and waits for all outstanding permits to be released.
type Barrier struct {
	shared *shared
	sugar  *zap.SugaredLogger
}

// New creates a limiter together with the barrier controlling its shutdown.
// Both sides reference the same counting resource. The pool is the execution
// context every issued Permit carries. metrics may be nil.
func New(capacity int64, pool *vmexec.Pool, sugar *zap.SugaredLogger, m *metrics.Metrics) (*Limiter, *Barrier, error) {
	if sugar == nil {
		return nil, nil, ErrInvalidLogger
	}
	if pool == nil {
		return nil, nil, ErrInvalidPool
	}
	if capacity <= 0 {
		return nil, nil, ErrInvalidCapacity
	}

	s := &shared{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
		closedCh: make(chan struct{}),
	}
	sugar.Infow("initializing vm concurrency limiter", "capacity", capacity, "poolWorkers", pool.Size())

	limiter := &Limiter{shared: s, pool: pool, sugar: sugar, metrics: m}
	barrier := &Barrier{shared: s, sugar: sugar}
	return limiter, barrier, nil
}

// Acquire waits until there is a free execution slot and returns a Permit for
// it. It returns ErrClosed once the paired Barrier has closed the limiter, and
// ctx.Err() if the caller's context is cancelled while waiting; neither case
// consumes a slot.
//
// The returned Permit must be released when the VM execution finishes, on
// every exit path:
//
//	permit, err := limiter.Acquire(ctx)
//	if err != nil { ... }
//	defer permit.Release()
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	s := l.shared

	available := s.capacity - s.inUse.Load()
	l.metrics.SetAvailablePermits(available)

	if s.closed.Load() {
		l.metrics.RecordAcquire(metrics.AcquireClosed, 0)
		return nil, ErrClosed
	}

	// The semaphore wait has to unblock when the barrier closes the limiter,
	// so the wait context is cancelled on close as well.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closedCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	start := time.Now()
	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if s.closed.Load() {
			l.metrics.RecordAcquire(metrics.AcquireClosed, time.Since(start).Seconds())
			return nil, ErrClosed
		}
		l.metrics.RecordAcquire(metrics.AcquireCancelled, time.Since(start).Seconds())
		return nil, err
	}
	if s.closed.Load() {
		// Lost the race with Close; a permit is never issued after closing.
		s.sem.Release(1)
		l.metrics.RecordAcquire(metrics.AcquireClosed, time.Since(start).Seconds())
		return nil, ErrClosed
	}
	s.inUse.Add(1)

	elapsed := time.Since(start)
	l.metrics.RecordAcquire(metrics.AcquireAcquired, elapsed.Seconds())
	if elapsed > slowAcquireThreshold {
		l.sugar.Debugw("vm permit obtained after waiting", "available", available, "waited", elapsed)
	}

	return &Permit{shared: s, pool: l.pool}, nil
}

// Permit proves that one VM execution slot is reserved. Any method that
// invokes VM code accepts a Permit as evidence that the caller went through
// the limiter. A Permit is owned by the request that acquired it and released
// exactly once.
type Permit struct {
	shared *shared
	pool   *vmexec.Pool
	once   sync.Once
}

// Pool returns the execution pool the blocking VM call should run on. The
// handle travels with the permit so downstream code does not reach for a
// process-wide lookup.
func (p *Permit) Pool() *vmexec.Pool { return p.pool }

// Release returns the execution slot. Safe to call more than once; only the
// first call has an effect. Callers defer this immediately after acquisition
// so the slot is returned on error and cancellation paths too.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.shared.inUse.Add(-1)
		p.shared.sem.Release(1)
	})
}
