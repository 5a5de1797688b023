package vmgate

import (
	"context"
	"time"
)

// How often the barrier re-checks the counting resource while draining.
const drainPollInterval = 50 * time.Millisecond

// Close shuts down the related limiter so that it won't issue new permits.
// All pending and future Acquire calls fail with ErrClosed. Idempotent and
// safe to call concurrently with Acquire.
func (b *Barrier) Close() {
	b.shared.closeOnce.Do(func() {
		b.shared.closed.Store(true)
		close(b.shared.closedCh)
		b.sugar.Info("vm concurrency limiter closed")
	})
}

// WaitUntilStopped blocks until every permit issued by the limiter has been
// released, polling the counting resource at a fixed interval. Calling it on
// a barrier that has not been closed is a programming error and panics.
// Returns ctx.Err() if ctx is cancelled before the drain completes.
func (b *Barrier) WaitUntilStopped(ctx context.Context) error {
	s := b.shared
	if !s.closed.Load() {
		panic("vmgate: cannot wait on a non-closed vm concurrency limiter")
	}

	t := time.NewTicker(drainPollInterval)
	defer t.Stop()
	for {
		// All units back in the semaphore means every permit was released.
		// TryAcquire is all-or-nothing, so this cannot observe a half-drained
		// state or strand units.
		if s.sem.TryAcquire(s.capacity) {
			s.sem.Release(s.capacity)
			b.sugar.Info("vm concurrency limiter drained")
			return nil
		}
		b.sugar.Debugw("waiting for vm permits to drain",
			"outstanding", s.inUse.Load(), "capacity", s.capacity)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
