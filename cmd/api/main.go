// Command api runs the HTTP Gateway: the three lifecycle endpoints plus
// listing, dashboard aggregation, and delete, fronting the Scan Store and
// Submission Service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanforge/vulnscan-engine/internal/api"
	"github.com/scanforge/vulnscan-engine/internal/cache"
	"github.com/scanforge/vulnscan-engine/internal/config"
	"github.com/scanforge/vulnscan-engine/internal/store"
	"github.com/scanforge/vulnscan-engine/internal/submission"
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

	var dashCache *cache.Cache
	if cfg.RedisEnabled {
		dashCache, err = cache.New(cfg.RedisURL, time.Duration(cfg.DashboardCacheTTLSeconds)*time.Second)
		if err != nil {
			log.Printf("redis cache disabled: %v", err)
			dashCache = nil
		}
	}

	obsConfig := observability.DefaultConfig()
	obsConfig.ServiceName = "vulnscan-api"
	obsConfig.MetricsEnabled = cfg.MetricsEnabled
	obsConfig.MetricsPort = cfg.MetricsPort

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
	if dashCache != nil {
		health.RegisterChecker(observability.NewRedisHealthChecker("redis", dashCache.Ping))
	}
	if cfg.EnableArchiveUpload {
		health.RegisterChecker(observability.NewDiskSpaceHealthChecker("archive-upload-dir", cfg.ArchiveUploadDir, cfg.DiskSpaceWarnPercent))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := health.Start(ctx); err != nil {
		log.Printf("health service failed to start: %v", err)
	}
	defer health.Stop()

	submissionSvc := submission.New(st, nil, cfg.ScanCacheTTLMinutes)

	gw := &api.Gateway{
		Submission: submissionSvc,
		Store:      st,
		Cache:      dashCache,
		Health:     health,
		Metrics:    metrics,
		Config:     cfg,
	}

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      gw.NewRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("vulnscan api listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down api...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if dashCache != nil {
		_ = dashCache.Close()
	}
}
