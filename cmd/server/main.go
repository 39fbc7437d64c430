// drivesim-server serves a populated feature store read-only over HTTP,
// alongside /metrics and /health, without running a simulation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbd888/drivesim/internal/config"
	"github.com/mbd888/drivesim/internal/featurestore"
	"github.com/mbd888/drivesim/internal/health"
	"github.com/mbd888/drivesim/internal/logging"
	"github.com/mbd888/drivesim/internal/metrics"
	"github.com/mbd888/drivesim/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const defaultAddr = ":8080"

func main() {
	logger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting drivesim-server",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store featurestore.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := featurestore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open feature store", "error", err)
			os.Exit(1)
		}
		go metrics.StartDBStatsCollector(ctx, pg.DB(), 15*time.Second)
		store = pg
	case cfg.SQLitePath != "":
		lite, err := featurestore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to open feature store", "error", err)
			os.Exit(1)
		}
		store = lite
	default:
		logger.Error("DATABASE_URL or SQLITE_PATH is required")
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	reg := health.NewRegistry()
	reg.Register("feature_store", health.PingChecker("feature_store", store))
	srv := server.New(server.WithLogger(logger), server.WithHealth(reg), server.WithStore(store))

	addr := cfg.MetricsAddr
	if addr == "" {
		addr = defaultAddr
	}
	if err := srv.Run(ctx, addr); err != nil {
		logger.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}
}
