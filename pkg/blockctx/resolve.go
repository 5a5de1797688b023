package blockctx

import (
	"context"
	"errors"
	"fmt"
)

// Context is the block information handed to the VM for one call. It is
// constructed once per request and immutable afterwards.
type Context struct {
	ref            Reference
	blockNumber    uint64
	batchTimestamp *uint64
}

// Reference returns the reference the context was resolved from.
func (c Context) Reference() Reference { return c.ref }

// BlockNumber returns the concrete block number the reference resolved to.
func (c Context) BlockNumber() uint64 { return c.blockNumber }

// BatchTimestamp returns the expected seal timestamp of the containing batch.
// ok is false only for the pending block, whose batch is not sealed yet.
func (c Context) BatchTimestamp() (uint64, bool) {
	if c.batchTimestamp == nil {
		return 0, false
	}
	return *c.batchTimestamp, true
}

// ResolvesToLatestSealedBlock reports whether the context tracks the moving
// chain head (pending, latest, committed). Results for these references must
// not be cached as if stable; results for fixed references are immutable.
func (c Context) ResolvesToLatestSealedBlock() bool {
	return c.ref.movesWithChainHead()
}

// ResolvePending resolves the pending block directly. It never carries a
// batch timestamp. Given that genesis guarantees at least one block, an
// absent pending block indicates a storage inconsistency.
func ResolvePending(ctx context.Context, storage Storage) (Context, error) {
	number, ok, err := storage.PendingBlockNumber(ctx)
	if err != nil {
		return Context{}, fmt.Errorf("failed resolving pending block number: %w", err)
	}
	if !ok {
		return Context{}, errors.New("pending block should always be present in storage")
	}
	return Context{ref: Pending(), blockNumber: number}, nil
}

// Resolve loads the block context for ref.
//
// It returns *PrunedError when ref points below the retention boundary,
// ErrMissing when no matching block exists yet, and a plain error for storage
// failures or inconsistencies. The three outcomes are distinct on purpose:
// callers react differently to each.
func Resolve(ctx context.Context, storage Storage, ref Reference, retention RetentionInfo) (Context, error) {
	// A pruned reference must be rejected up front: resolving one would
	// produce a nonsensical batch timestamp.
	if err := retention.CheckNotPruned(ref); err != nil {
		return Context{}, err
	}

	if ref.IsPending() {
		return ResolvePending(ctx, storage)
	}

	number, ok, err := storage.ResolveBlockNumber(ctx, ref)
	if err != nil {
		return Context{}, fmt.Errorf("failed resolving block %s: %w", ref, err)
	}
	if !ok {
		return Context{}, ErrMissing
	}

	batch, ok, err := storage.BatchOfBlock(ctx, number)
	if err != nil {
		return Context{}, fmt.Errorf("failed resolving batch of block #%d: %w", number, err)
	}
	if !ok {
		return Context{}, fmt.Errorf("no batch recorded for sealed block #%d", number)
	}

	timestamp, ok, err := storage.ExpectedBatchSealTimestamp(ctx, batch)
	if err != nil {
		return Context{}, fmt.Errorf("failed getting seal timestamp of batch #%d: %w", batch, err)
	}
	if !ok {
		// Unreachable for sealed data unless storage is inconsistent.
		return Context{}, fmt.Errorf("missing seal timestamp of batch #%d for sealed block #%d", batch, number)
	}

	return Context{ref: ref, blockNumber: number, batchTimestamp: &timestamp}, nil
}
