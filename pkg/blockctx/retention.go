package blockctx

import (
	"context"
	"fmt"
)

// RetentionInfo is a snapshot of the oldest ledger data still available
// locally. Zero values mean no pruning has ever occurred.
type RetentionInfo struct {
	// FirstBlock is the number of the first locally available block.
	FirstBlock uint64
	// FirstBatch is the number of the first locally available batch.
	FirstBatch uint64
}

// LoadRetentionInfo derives the retention boundary from the most recent
// applied recovery marker. With no marker the node owns its full history and
// both boundaries are zero; otherwise the first retained block/batch is one
// past the recovered point.
func LoadRetentionInfo(ctx context.Context, storage Storage) (RetentionInfo, error) {
	marker, err := storage.LatestRecoveryMarker(ctx)
	if err != nil {
		return RetentionInfo{}, fmt.Errorf("failed to load recovery marker: %w", err)
	}
	if marker == nil {
		return RetentionInfo{}, nil
	}
	return RetentionInfo{
		FirstBlock: marker.BlockNumber + 1,
		FirstBatch: marker.BatchNumber + 1,
	}, nil
}

// CheckNotPruned returns a *PrunedError when ref points below the retention
// boundary. An explicit number below FirstBlock is pruned; the earliest tag is
// pruned whenever any pruning has occurred, because the chain's true earliest
// block is then gone.
func (info RetentionInfo) CheckNotPruned(ref Reference) error {
	if n, ok := ref.Number(); ok && n < info.FirstBlock {
		return &PrunedError{FirstRetainedBlock: info.FirstBlock}
	}
	if ref.kind == kindEarliest && info.FirstBlock > 0 {
		return &PrunedError{FirstRetainedBlock: info.FirstBlock}
	}
	return nil
}
