package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/seqlabs/vmsandbox/internal/sandbox"
	"github.com/seqlabs/vmsandbox/pkg/blockctx"
	"github.com/seqlabs/vmsandbox/pkg/clickhouse"
	"github.com/seqlabs/vmsandbox/pkg/data/clickhouse/ledger"
	"github.com/seqlabs/vmsandbox/pkg/metrics"
	"github.com/seqlabs/vmsandbox/pkg/scheduler"
	"github.com/seqlabs/vmsandbox/pkg/utils"
	"github.com/seqlabs/vmsandbox/pkg/vmexec"
	"github.com/seqlabs/vmsandbox/pkg/vmgate"
)

const readHeaderTimeout = 10 * time.Second

// echoVM is the placeholder execution engine: it returns the calldata as the
// call result. The real engine is plugged in behind sandbox.VM.
type echoVM struct{}

func (echoVM) Execute(_ context.Context, call sandbox.Call, _ blockctx.Context) (sandbox.Result, error) {
	return sandbox.Result{ReturnData: call.Input}, nil
}

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"chainID", cfg.ChainID,
		"vmConcurrency", cfg.VMConcurrency,
		"vmPoolSize", cfg.VMPoolSize,
		"drainTimeout", cfg.DrainTimeout,
		"listenAddr", cfg.ListenAddr,
		"retentionRefreshInterval", cfg.RetentionRefreshInterval,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"clickhouseDatabase", cfg.ClickHouse.Database,
		"ledgerDatabase", cfg.Database,
		"blocksTableName", cfg.Tables.Blocks,
		"batchesTableName", cfg.Tables.Batches,
		"recoveryMarkersTableName", cfg.Tables.RecoveryMarkers,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		ChainID:     cfg.ChainID,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry)
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chClient, err := clickhouse.New(cfg.ClickHouse, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	repo, err := ledger.NewRepository(chClient, cfg.Database, cfg.Tables, m)
	if err != nil {
		return fmt.Errorf("failed to create ledger repository: %w", err)
	}

	pool, err := vmexec.NewPool(cfg.VMPoolSize, sugar)
	if err != nil {
		return fmt.Errorf("failed to create vm execution pool: %w", err)
	}

	limiter, barrier, err := vmgate.New(cfg.VMConcurrency, pool, sugar, m)
	if err != nil {
		return fmt.Errorf("failed to create vm concurrency limiter: %w", err)
	}

	service, err := sandbox.NewService(sugar, limiter, repo, echoVM{}, m)
	if err != nil {
		return fmt.Errorf("failed to create sandbox service: %w", err)
	}

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           sandbox.NewHandler(service, sugar),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Call API goroutine - blocks until shutdown or error
	g.Go(func() error {
		sugar.Infow("call API listening", "addr", cfg.ListenAddr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("call API server error: %w", err)
		}
		return nil
	})

	// Retention watchdog goroutine - keeps the pruning boundary observable
	g.Go(func() error {
		watchdogCfg := scheduler.DefaultConfig()
		watchdogCfg.Interval = cfg.RetentionRefreshInterval
		return scheduler.Start(gctx, sugar, repo, m, watchdogCfg)
	})

	// Metrics server error monitoring goroutine
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		}
	})

	// Shutdown goroutine: once the run context ends, stop admitting VM calls,
	// wait for the in-flight ones to drain, then stop the API server.
	g.Go(func() error {
		<-gctx.Done()

		barrier.Close()
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
		defer cancel()
		if err := barrier.WaitUntilStopped(drainCtx); err != nil {
			sugar.Warnw("vm permits did not drain before timeout", "error", err)
		}
		pool.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("call API shutdown error", "error", err)
		}
		return gctx.Err()
	})

	// Wait for first error or completion from any goroutine
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	return err
}
