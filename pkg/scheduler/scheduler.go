// Package scheduler periodically refreshes the retention boundary from
// storage so the pruning progress of the node is observable. The call path
// loads its own retention snapshot per request; this loop only feeds metrics
// and logs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seqlabs/vmsandbox/pkg/blockctx"
	"github.com/seqlabs/vmsandbox/pkg/metrics"
)

// Config holds the configuration for the retention watchdog.
type Config struct {
	Interval     time.Duration // Interval between retention refreshes
	QueryTimeout time.Duration // Timeout for each storage query
	MaxRetries   int           // Maximum number of retry attempts for failed queries
	RetryBackoff time.Duration // Backoff duration between retry attempts
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		QueryTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 300 * time.Millisecond,
	}
}

// Start runs the retention watchdog until ctx is cancelled. Each tick it loads
// the retention boundary, publishes it to metrics, and logs when the boundary
// advanced. metrics may be nil.
//
// Returns nil on context cancellation (graceful shutdown), or an error if the
// storage query fails after all retries.
func Start(
	ctx context.Context,
	sugar *zap.SugaredLogger,
	storage blockctx.Storage,
	m *metrics.Metrics,
	cfg Config,
) error {
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()

	var last blockctx.RetentionInfo
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-t.C:
			info, err := loadWithRetries(ctx, storage, cfg)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to load retention info after %d retries: %w",
					cfg.MaxRetries+1, err)
			}

			m.SetRetentionBoundary(info.FirstBlock, info.FirstBatch)
			if info != last {
				sugar.Infow("retention boundary advanced",
					"firstBlock", info.FirstBlock, "firstBatch", info.FirstBatch)
				last = info
			}
		}
	}
}

func loadWithRetries(ctx context.Context, storage blockctx.Storage, cfg Config) (blockctx.RetentionInfo, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return blockctx.RetentionInfo{}, ctx.Err()
		}

		queryCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
		info, err := blockctx.LoadRetentionInfo(queryCtx, storage)
		cancel()
		if err == nil {
			return info, nil
		}
		lastErr = err

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				return blockctx.RetentionInfo{}, ctx.Err()
			}
		}
	}
	return blockctx.RetentionInfo{}, lastErr
}
