package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/seqlabs/vmsandbox/pkg/clickhouse"
	"github.com/seqlabs/vmsandbox/pkg/data/clickhouse/ledger"
	"github.com/seqlabs/vmsandbox/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := context.Background()
	sugar, err := utils.NewSugaredLogger(true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	chCfg, err := clickhouse.Load()
	if err != nil {
		return fmt.Errorf("failed to load ClickHouse config: %w", err)
	}
	chClient, err := clickhouse.New(chCfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	tables := ledger.Tables{
		Blocks:          c.String("blocks-table-name"),
		Batches:         c.String("batches-table-name"),
		RecoveryMarkers: c.String("recovery-markers-table-name"),
	}
	repo, err := ledger.NewRepository(chClient, c.String("ledger-database"), tables, nil)
	if err != nil {
		return fmt.Errorf("failed to create ledger repository: %w", err)
	}

	if err := repo.DropTables(ctx); err != nil {
		return fmt.Errorf("failed to drop ledger tables: %w", err)
	}

	sugar.Infof("ledger tables %s, %s, and %s successfully removed",
		tables.Blocks, tables.Batches, tables.RecoveryMarkers)

	return nil
}
