package blockctx

import "context"

// RecoveryMarker records the most recent applied snapshot recovery. Everything
// at or before the marked point was replaced by the snapshot and is no longer
// present locally.
type RecoveryMarker struct {
	BlockNumber uint64
	BatchNumber uint64
}

// Storage is the ledger access needed to resolve block contexts. Implementors
// report absence through the ok return rather than an error; errors are
// reserved for storage failures.
type Storage interface {
	// ResolveBlockNumber maps a non-pending reference to a concrete block
	// number. ok is false when no matching block exists.
	ResolveBlockNumber(ctx context.Context, ref Reference) (number uint64, ok bool, err error)

	// PendingBlockNumber returns the number the in-progress block will occupy.
	// ok is false only when storage holds no blocks at all.
	PendingBlockNumber(ctx context.Context) (number uint64, ok bool, err error)

	// BatchOfBlock returns the number of the batch containing the given
	// sealed block.
	BatchOfBlock(ctx context.Context, blockNumber uint64) (batchNumber uint64, ok bool, err error)

	// ExpectedBatchSealTimestamp returns the Unix timestamp the given batch
	// seals (or sealed) at.
	ExpectedBatchSealTimestamp(ctx context.Context, batchNumber uint64) (timestamp uint64, ok bool, err error)

	// LatestRecoveryMarker returns the most recent applied recovery marker,
	// or nil when the node owns its full history from genesis.
	LatestRecoveryMarker(ctx context.Context) (*RecoveryMarker, error)
}
