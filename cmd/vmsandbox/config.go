package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/seqlabs/vmsandbox/pkg/clickhouse"
	"github.com/seqlabs/vmsandbox/pkg/data/clickhouse/ledger"
)

// Config holds all configuration for the vmsandbox application
type Config struct {
	// Application settings
	Verbose bool
	ChainID uint64

	// Admission control settings
	VMConcurrency int64
	VMPoolSize    int
	DrainTimeout  time.Duration

	// Call API settings
	ListenAddr string

	// Retention watchdog settings
	RetentionRefreshInterval time.Duration

	// ClickHouse settings
	ClickHouse clickhouse.Config
	Database   string
	Tables     ledger.Tables

	// Metrics settings
	MetricsHost string
	MetricsPort int
	Environment string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags. ClickHouse connection
// settings come from the environment; table placement comes from flags.
func buildConfig(c *cli.Context) (*Config, error) {
	chCfg, err := clickhouse.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load ClickHouse config: %w", err)
	}

	return &Config{
		Verbose:                  c.Bool("verbose"),
		ChainID:                  c.Uint64("chain-id"),
		VMConcurrency:            c.Int64("vm-concurrency"),
		VMPoolSize:               c.Int("vm-pool-size"),
		DrainTimeout:             c.Duration("drain-timeout"),
		ListenAddr:               c.String("listen-addr"),
		RetentionRefreshInterval: c.Duration("retention-refresh-interval"),
		ClickHouse:               chCfg,
		Database:                 c.String("ledger-database"),
		Tables: ledger.Tables{
			Blocks:          c.String("blocks-table-name"),
			Batches:         c.String("batches-table-name"),
			RecoveryMarkers: c.String("recovery-markers-table-name"),
		},
		MetricsHost: c.String("metrics-host"),
		MetricsPort: c.Int("metrics-port"),
		Environment: c.String("environment"),
	}, nil
}
