package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the vmsandbox run command
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"C"},
			Usage:   "The chain ID of the ledger this node serves (metrics label)",
			EnvVars: []string{"CHAIN_ID"},
		},
		&cli.Int64Flag{
			Name:     "vm-concurrency",
			Aliases:  []string{"c"},
			Usage:    "The maximum number of concurrently admitted VM executions",
			EnvVars:  []string{"VM_CONCURRENCY"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    "vm-pool-size",
			Aliases: []string{"p"},
			Usage:   "The number of workers executing blocking VM calls (effective parallelism is min of this and vm-concurrency)",
			EnvVars: []string{"VM_POOL_SIZE"},
			Value:   32,
		},
		&cli.StringFlag{
			Name:    "listen-addr",
			Aliases: []string{"l"},
			Usage:   "Address for the call API server",
			EnvVars: []string{"LISTEN_ADDR"},
			Value:   ":8545",
		},
		&cli.DurationFlag{
			Name:    "drain-timeout",
			Aliases: []string{"d"},
			Usage:   "How long to wait for in-flight VM executions to finish on shutdown",
			EnvVars: []string{"DRAIN_TIMEOUT"},
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "retention-refresh-interval",
			Usage:   "How often the retention boundary is refreshed from storage",
			EnvVars: []string{"RETENTION_REFRESH_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "ledger-database",
			Usage:   "ClickHouse database holding the ledger tables",
			EnvVars: []string{"LEDGER_DATABASE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "blocks-table-name",
			Usage:   "The name of the sealed blocks table",
			EnvVars: []string{"BLOCKS_TABLE_NAME"},
			Value:   "blocks",
		},
		&cli.StringFlag{
			Name:    "batches-table-name",
			Usage:   "The name of the sealed batches table",
			EnvVars: []string{"BATCHES_TABLE_NAME"},
			Value:   "batches",
		},
		&cli.StringFlag{
			Name:    "recovery-markers-table-name",
			Usage:   "The name of the snapshot recovery markers table",
			EnvVars: []string{"RECOVERY_MARKERS_TABLE_NAME"},
			Value:   "recovery_markers",
		},
	}
}

func removeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "ledger-database",
			Usage:   "ClickHouse database holding the ledger tables",
			EnvVars: []string{"LEDGER_DATABASE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "blocks-table-name",
			Usage:   "The name of the sealed blocks table",
			EnvVars: []string{"BLOCKS_TABLE_NAME"},
			Value:   "blocks",
		},
		&cli.StringFlag{
			Name:    "batches-table-name",
			Usage:   "The name of the sealed batches table",
			EnvVars: []string{"BATCHES_TABLE_NAME"},
			Value:   "batches",
		},
		&cli.StringFlag{
			Name:    "recovery-markers-table-name",
			Usage:   "The name of the snapshot recovery markers table",
			EnvVars: []string{"RECOVERY_MARKERS_TABLE_NAME"},
			Value:   "recovery_markers",
		},
	}
}
