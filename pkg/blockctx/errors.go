package blockctx

import (
	"errors"
	"fmt"
)

// ErrMissing reports that no matching block exists in storage yet. This is a
// recoverable outcome: the block may legitimately appear later.
var ErrMissing = errors.New("block is missing, but may appear in the future")

// PrunedError reports that a reference points below the retention boundary.
// Callers map it to a "data no longer available" response.
type PrunedError struct {
	// FirstRetainedBlock is the lowest block number still present locally.
	FirstRetainedBlock uint64
}

func (e *PrunedError) Error() string {
	return fmt.Sprintf("block is pruned; first retained block is %d", e.FirstRetainedBlock)
}
