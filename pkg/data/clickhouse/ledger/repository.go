// Package ledger is the ClickHouse-backed view of the node's local chain
// history: sealed blocks, their batches, and applied snapshot-recovery
// markers. It implements blockctx.Storage for block context resolution.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seqlabs/vmsandbox/pkg/blockctx"
	"github.com/seqlabs/vmsandbox/pkg/clickhouse"
	"github.com/seqlabs/vmsandbox/pkg/metrics"
)

// Storage query names used for duration metrics.
const (
	queryResolveBlock   = "resolve_block"
	queryPendingBlock   = "pending_block"
	queryBatchOfBlock   = "batch_of_block"
	queryBatchSealTS    = "batch_seal_timestamp"
	queryRecoveryMarker = "recovery_marker"
)

// Repository reads and writes the node's local ledger tables. Reads implement
// the blockctx.Storage collaborator; writes exist for table bootstrap and for
// the ingestion side of the node, which is out of this package's concern.
type Repository interface {
	blockctx.Storage

	CreateTablesIfNotExist(ctx context.Context) error
	InsertBlock(ctx context.Context, block *BlockRow) error
	InsertBatch(ctx context.Context, batch *BatchRow) error
	WriteRecoveryMarker(ctx context.Context, marker *RecoveryMarkerRow) error
	DropTables(ctx context.Context) error
}

var _ Repository = (*repository)(nil)
var _ blockctx.Storage = (*repository)(nil)

// Tables names the three ledger tables inside one database.
type Tables struct {
	Blocks          string
	Batches         string
	RecoveryMarkers string
}

// DefaultTables returns the table names used unless overridden.
func DefaultTables() Tables {
	return Tables{
		Blocks:          "blocks",
		Batches:         "batches",
		RecoveryMarkers: "recovery_markers",
	}
}

type repository struct {
	client   clickhouse.Client
	database string
	tables   Tables
	metrics  *metrics.Metrics
}

// NewRepository creates a ledger repository and ensures its tables exist.
// metrics may be nil.
func NewRepository(client clickhouse.Client, database string, tables Tables, m *metrics.Metrics) (Repository, error) {
	repo := &repository{client: client, database: database, tables: tables, metrics: m}
	if err := repo.CreateTablesIfNotExist(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create ledger tables: %w", err)
	}
	return repo, nil
}

// CreateTablesIfNotExists creates the blocks, batches and recovery marker
// tables if they don't exist.
func (r *repository) CreateTablesIfNotExist(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, createBlocksTableQuery(r.database, r.tables.Blocks)); err != nil {
		return fmt.Errorf("failed to create blocks table: %w", err)
	}
	if err := r.client.Conn().Exec(ctx, createBatchesTableQuery(r.database, r.tables.Batches)); err != nil {
		return fmt.Errorf("failed to create batches table: %w", err)
	}
	if err := r.client.Conn().Exec(ctx, createRecoveryMarkersTableQuery(r.database, r.tables.RecoveryMarkers)); err != nil {
		return fmt.Errorf("failed to create recovery markers table: %w", err)
	}
	return nil
}

// ResolveBlockNumber maps a non-pending reference to a concrete block number.
// Implements blockctx.Storage.
func (r *repository) ResolveBlockNumber(ctx context.Context, ref blockctx.Reference) (uint64, bool, error) {
	defer r.observe(queryResolveBlock, time.Now())

	if n, ok := ref.Number(); ok {
		return r.scanBlockNumber(ctx, blockByNumberQuery(r.database, r.tables.Blocks), n)
	}
	if h, ok := ref.Hash(); ok {
		return r.scanBlockNumber(ctx, blockByHashQuery(r.database, r.tables.Blocks), h.Hex())
	}

	switch ref {
	case blockctx.Latest():
		return r.scanBlockNumber(ctx, latestBlockQuery(r.database, r.tables.Blocks))
	case blockctx.Earliest():
		return r.scanBlockNumber(ctx, earliestBlockQuery(r.database, r.tables.Blocks))
	case blockctx.Committed():
		batch, ok, err := r.latestCommittedBatch(ctx)
		if err != nil || !ok {
			return 0, false, err
		}
		return r.scanBlockNumber(ctx, latestBlockOfBatchQuery(r.database, r.tables.Blocks), batch)
	default:
		return 0, false, fmt.Errorf("unresolvable block reference %s", ref)
	}
}

// PendingBlockNumber returns the number the in-progress block will occupy,
// one past the latest sealed block. Implements blockctx.Storage.
func (r *repository) PendingBlockNumber(ctx context.Context) (uint64, bool, error) {
	defer r.observe(queryPendingBlock, time.Now())

	latest, ok, err := r.scanBlockNumber(ctx, latestBlockQuery(r.database, r.tables.Blocks))
	if err != nil || !ok {
		return 0, false, err
	}
	return latest + 1, true, nil
}

// BatchOfBlock returns the batch containing the given sealed block.
// Implements blockctx.Storage.
func (r *repository) BatchOfBlock(ctx context.Context, blockNumber uint64) (uint64, bool, error) {
	defer r.observe(queryBatchOfBlock, time.Now())

	var batch uint64
	err := r.client.Conn().
		QueryRow(ctx, batchOfBlockQuery(r.database, r.tables.Blocks), blockNumber).
		Scan(&batch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to query batch of block: %w", err)
	}
	return batch, true, nil
}

// ExpectedBatchSealTimestamp returns the Unix timestamp the given batch seals
// at. Implements blockctx.Storage.
func (r *repository) ExpectedBatchSealTimestamp(ctx context.Context, batchNumber uint64) (uint64, bool, error) {
	defer r.observe(queryBatchSealTS, time.Now())

	var ts uint64
	err := r.client.Conn().
		QueryRow(ctx, batchSealTimestampQuery(r.database, r.tables.Batches), batchNumber).
		Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to query batch seal timestamp: %w", err)
	}
	return ts, true, nil
}

// LatestRecoveryMarker returns the most recent applied recovery marker, or
// nil when none has ever been written. Implements blockctx.Storage.
func (r *repository) LatestRecoveryMarker(ctx context.Context) (*blockctx.RecoveryMarker, error) {
	defer r.observe(queryRecoveryMarker, time.Now())

	var row RecoveryMarkerRow
	err := r.client.Conn().
		QueryRow(ctx, latestRecoveryMarkerQuery(r.database, r.tables.RecoveryMarkers)).
		Scan(&row.BlockNumber, &row.BatchNumber, &row.AppliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query recovery marker: %w", err)
	}
	return &blockctx.RecoveryMarker{
		BlockNumber: row.BlockNumber,
		BatchNumber: row.BatchNumber,
	}, nil
}

// InsertBlock inserts a sealed block row.
func (r *repository) InsertBlock(ctx context.Context, block *BlockRow) error {
	err := r.client.Conn().Exec(ctx, insertBlockQuery(r.database, r.tables.Blocks),
		block.Number, block.Hash, block.BatchNumber, block.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

// InsertBatch inserts a batch row.
func (r *repository) InsertBatch(ctx context.Context, batch *BatchRow) error {
	committed := uint8(0)
	if batch.Committed {
		committed = 1
	}
	err := r.client.Conn().Exec(ctx, insertBatchQuery(r.database, r.tables.Batches),
		batch.Number, batch.ExpectedSealTimestamp, committed)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// WriteRecoveryMarker persists an applied snapshot-recovery marker.
func (r *repository) WriteRecoveryMarker(ctx context.Context, marker *RecoveryMarkerRow) error {
	err := r.client.Conn().Exec(ctx, insertRecoveryMarkerQuery(r.database, r.tables.RecoveryMarkers),
		marker.BlockNumber, marker.BatchNumber, marker.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to write recovery marker: %w", err)
	}
	return nil
}

// DropTables removes all ledger tables. Used by the remove command.
func (r *repository) DropTables(ctx context.Context) error {
	for _, table := range []string{r.tables.Blocks, r.tables.Batches, r.tables.RecoveryMarkers} {
		if err := r.client.Conn().Exec(ctx, dropTableQuery(r.database, table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

func (r *repository) latestCommittedBatch(ctx context.Context) (uint64, bool, error) {
	var batch uint64
	err := r.client.Conn().
		QueryRow(ctx, latestCommittedBatchQuery(r.database, r.tables.Batches)).
		Scan(&batch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to query latest committed batch: %w", err)
	}
	return batch, true, nil
}

func (r *repository) scanBlockNumber(ctx context.Context, query string, args ...interface{}) (uint64, bool, error) {
	var number uint64
	err := r.client.Conn().QueryRow(ctx, query, args...).Scan(&number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to query block number: %w", err)
	}
	return number, true, nil
}

func (r *repository) observe(query string, start time.Time) {
	r.metrics.ObserveStorageQuery(query, time.Since(start).Seconds())
}
