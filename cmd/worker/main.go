// Command worker runs a pool of scan drivers that claim pending scans from
// the Job Claimer and drive them through the worker state machine.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanforge/vulnscan-engine/internal/claimer"
	"github.com/scanforge/vulnscan-engine/internal/config"
	"github.com/scanforge/vulnscan-engine/internal/extract"
	"github.com/scanforge/vulnscan-engine/internal/scanner"
	"github.com/scanforge/vulnscan-engine/internal/store"
	"github.com/scanforge/vulnscan-engine/internal/worker"
	"github.com/scanforge/vulnscan-engine/pkg/observability"
)

func main() {
	cfg, err := config.Load(os.Getenv("VULNSCAN_CONFIG"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	st, err := store.Open(cfg.DatabaseURL, cfg.DBPoolSize, cfg.DBMaxOverflow, cfg.DBPoolTimeout, cfg.DBPoolRecycle)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}

	sqlDB, err := st.SQLDB()
	if err != nil {
		log.Fatalf("obtaining raw sql.DB: %v", err)
	}

	strategy := claimer.StrategySkipLocked
	if cfg.ClaimStrategy == "conditional_update" {
		strategy = claimer.StrategyConditionalUpdate
	}
	jobClaimer := claimer.New(sqlDB, strategy)

	obsConfig := observability.DefaultConfig()
	obsConfig.ServiceName = "vulnscan-worker"
	obsConfig.MetricsEnabled = cfg.MetricsEnabled
	obsConfig.MetricsPort = cfg.MetricsPort + 1

	metrics, err := observability.NewMetricsService(obsConfig)
	if err != nil {
		log.Fatalf("initializing metrics: %v", err)
	}
	if err := metrics.Start(); err != nil {
		log.Printf("metrics server failed to start: %v", err)
	}
	defer metrics.Shutdown(context.Background())

	health := observability.NewHealthService(obsConfig, metrics)
	health.RegisterChecker(observability.NewDatabaseHealthChecker("postgres", st.Ping))
	health.RegisterChecker(observability.NewDiskSpaceHealthChecker("trivy-cache-dir", cfg.TrivyCacheDir, cfg.DiskSpaceWarnPercent))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := health.Start(ctx); err != nil {
		log.Printf("health service failed to start: %v", err)
	}
	defer health.Stop()

	driver := &worker.Driver{
		Store:          st,
		Invoker:        scanner.New(cfg.TrivyBinaryPath, cfg.TrivyCacheDir),
		Weights:        extract.Weights{Critical: cfg.RiskWeightCritical, High: cfg.RiskWeightHigh, Medium: cfg.RiskWeightMedium, Low: cfg.RiskWeightLow},
		ScanTimeout:    time.Duration(cfg.ScanTimeoutSeconds) * time.Second,
		TrivyTimeout:   time.Duration(cfg.TrivyTimeoutSeconds) * time.Second,
		MaxRetries:     cfg.ScanMaxRetries,
		PersistDetails: cfg.PersistVulnerabilityDetails,
	}

	pool := worker.NewPool(driver, jobClaimer, cfg.WorkerConcurrency, time.Duration(cfg.WorkerPollIntervalSeconds)*time.Second)

	log.Printf("vulnscan worker starting: concurrency=%d poll=%ds strategy=%s", cfg.WorkerConcurrency, cfg.WorkerPollIntervalSeconds, cfg.ClaimStrategy)

	runCtx, runCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(runCtx)
		close(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down worker: no new claims, waiting for in-flight scans...")
	runCancel()
	<-done
}
