// drivesim - synthetic telematics portfolio and monthly feature table generator
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbd888/drivesim/internal/config"
	"github.com/mbd888/drivesim/internal/logging"
	"github.com/mbd888/drivesim/internal/portfolio"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting drivesim",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		var verr *portfolio.ValidationError
		if errors.As(err, &verr) {
			logger.Error("invalid portfolio", "error", err)
		} else {
			logger.Error("simulation failed", "error", err)
		}
		stop()
		os.Exit(1)
	}
}
