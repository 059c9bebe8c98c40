package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/greymass/roborovski/libraries/config"
	"github.com/greymass/roborovski/libraries/logger"
	"github.com/greymass/roborovski/libraries/profiler"
	"github.com/greymass/roborovski/libraries/server"
	"github.com/greymass/roborovski/services/shipfill/internal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

var (
	productionCategories = []string{"startup", "session", "block", "fork", "trim", "store", "pebble", "profiler"}
	debugCategories      = []string{"debug", "debug-session", "debug-pebble"}
	allCategories        = append(append([]string{}, productionCategories...), debugCategories...)
)

func main() {
	config.CheckVersion(Version)

	cfg := &internal.Config{}
	if err := config.Load(cfg, os.Args[1:]); err != nil {
		logger.Fatal("Config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.RegisterCategories(allCategories...)
	if cfg.Debug {
		logger.SetMinLevel(logger.LevelDebug)
		logger.SetCategoryFilter(nil)
	} else {
		logger.SetCategoryFilter(cfg.LogFilter)
	}

	if cfg.LogFile != "" {
		if err := logger.SetLogFile(cfg.LogFile); err != nil {
			logger.Fatal("Failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer logger.Close()
		logger.Printf("startup", "Logging to file: %s", cfg.LogFile)
	}

	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}

	logger.Printf("startup", "shipfill %s starting...", Version)
	logger.Printf("startup", "Source:")
	logger.Printf("startup", "  endpoint: %s", cfg.Endpoint)
	logger.Printf("startup", "  max-message-mb: %d", cfg.MaxMessageMB)
	logger.Printf("startup", "Storage:")
	logger.Printf("startup", "  db-path: %s", cfg.DBPath)
	logger.Printf("startup", "  schema: %s", cfg.Schema)
	if cfg.DBSizeMB > 0 {
		logger.Printf("startup", "  set-db-size-mb: %d", cfg.DBSizeMB)
	}
	logger.Printf("startup", "  compress-rows: %v", cfg.CompressRows)
	logger.Printf("startup", "Filling:")
	if cfg.SkipTo > 0 {
		logger.Printf("startup", "  skip-to: %d", cfg.SkipTo)
	}
	if cfg.Stop > 0 {
		logger.Printf("startup", "  stop: %d", cfg.Stop)
	}
	logger.Printf("startup", "  trim: %v", cfg.Trim)
	logger.Printf("startup", "Logging:")
	logger.Printf("startup", "  log-filter: %s", strings.Join(cfg.LogFilter, ", "))
	if cfg.Profile {
		logger.Printf("startup", "Profiling: enabled (interval %ds)", cfg.ProfileInterval)
	}
	logger.Println("startup", "")

	if cfg.PprofPort != "" {
		go func() {
			addr := "localhost:" + cfg.PprofPort
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Printf("startup", "pprof server error: %v", err)
			}
		}()
	}

	if cfg.Profile {
		profiler.EnableBlockProfiling()
		profiler.Start(profiler.Config{
			ServiceName: "shipfill",
			Interval:    time.Duration(cfg.ProfileInterval) * time.Second,
		})
		defer profiler.Stop()
	}

	store, err := internal.OpenStore(cfg.DBPath, cfg.StoreConfig())
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}

	if cfg.Drop {
		logger.Printf("startup", "Dropping schema %s...", cfg.Schema)
		txn := store.Begin(true)
		if err := txn.Drop(); err != nil {
			logger.Fatal("Drop failed: %v", err)
		}
		if err := txn.Commit(); err != nil {
			logger.Fatal("Drop failed: %v", err)
		}
	}

	transport := &internal.WebsocketTransport{ReadLimit: cfg.MaxMessageMB << 20}
	filler := internal.NewFiller(cfg.SessionConfig(), transport, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsListen != "none" && cfg.MetricsListen != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error {
			return server.Serve(ctx, cfg.MetricsListen, metricsMux)
		})
		logger.Printf("startup", "Metrics server listening on %s", cfg.MetricsListen)
	}

	g.Go(func() error {
		err := filler.Run(ctx)
		// the session has ended; take the metrics server down with it
		stop()
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		filler.Shutdown()
		return nil
	})

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("shipfill stopped: %v", runErr)
	}

	logger.Printf("startup", "Closing database...")
	if err := store.Close(); err != nil {
		logger.Printf("startup", "Error closing database: %v", err)
	}
	logger.Printf("startup", "Shutdown complete")
	if runErr != nil {
		logger.Close()
		os.Exit(1)
	}
}
