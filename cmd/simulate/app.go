package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mbd888/drivesim/internal/circuitbreaker"
	"github.com/mbd888/drivesim/internal/config"
	"github.com/mbd888/drivesim/internal/enrich"
	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/featurestore"
	"github.com/mbd888/drivesim/internal/health"
	"github.com/mbd888/drivesim/internal/idgen"
	"github.com/mbd888/drivesim/internal/logging"
	"github.com/mbd888/drivesim/internal/metrics"
	"github.com/mbd888/drivesim/internal/pipeline"
	"github.com/mbd888/drivesim/internal/portfolio"
	"github.com/mbd888/drivesim/internal/ratelimit"
	"github.com/mbd888/drivesim/internal/server"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/traces"
)

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTraces, err := traces.Init(ctx, traces.Config{
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
		Version:     Version,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(sctx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	// Background collectors stop when run returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := idgen.RunID()
	ctx = logging.WithLogger(logging.WithRunID(ctx, runID), logger)
	log := logging.L(ctx)

	drivers, err := loadPortfolio(ctx, cfg)
	if err != nil {
		return err
	}
	sum := portfolio.Summarize(drivers)
	log.Info("portfolio ready", "drivers", sum.Total, "by_persona", sum.ByPersona,
		"mean_claim_probability", sum.MeanClaimProbability)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	breaker := circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown)
	enricher, err := buildEnricher(cfg, breaker)
	if err != nil {
		return err
	}

	reg := health.NewRegistry()
	reg.Register("providers", health.BreakerChecker("providers", breaker))
	if store != nil {
		reg.Register("feature_store", health.PingChecker("feature_store", store))
	}
	ops := server.New(server.WithLogger(logger), server.WithHealth(reg), server.WithStore(store))

	opsCtx, stopOps := context.WithCancel(context.Background())
	opsDone := make(chan struct{})
	if cfg.MetricsAddr != "" {
		go func() {
			defer close(opsDone)
			if err := ops.Run(opsCtx, cfg.MetricsAddr); err != nil {
				log.Error("ops server failed", "error", err)
			}
		}()
	} else {
		close(opsDone)
	}
	defer func() {
		stopOps()
		<-opsDone
	}()

	p := pipeline.New(pipeline.Config{
		Seed:       cfg.Seed,
		Start:      cfg.StartMonth,
		Months:     cfg.Months,
		Workers:    cfg.Workers,
		TripBuffer: cfg.TripBuffer,
	}, enricher).WithLogger(logger)

	ops.RunStarted(runID)
	res, err := p.Run(ctx, runID, drivers)
	if err != nil {
		return err
	}
	ops.RunFinished(&res.Summary)

	// The table is written even for a canceled run.
	if err := writeOutput(cfg.OutputPath, res.Records); err != nil {
		return err
	}
	log.Info("feature table written", "path", cfg.OutputPath, "records", len(res.Records))

	if store != nil {
		// Use a fresh context so a canceled run still persists what it finalized.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		err := store.Write(wctx, runID, res.Records)
		cancel()
		if err != nil {
			return fmt.Errorf("persist features: %w", err)
		}
		log.Info("features persisted", "records", len(res.Records))
	}

	if cfg.MetricsAddr != "" && cfg.MetricsLinger > 0 && ctx.Err() == nil {
		log.Info("ops server lingering", "for", cfg.MetricsLinger)
		select {
		case <-ctx.Done():
		case <-time.After(cfg.MetricsLinger):
		}
	}
	return nil
}

// loadPortfolio reads PORTFOLIO_PATH when set, otherwise generates drivers.
func loadPortfolio(ctx context.Context, cfg *config.Config) ([]portfolio.Driver, error) {
	if cfg.PortfolioPath != "" {
		f, err := os.Open(cfg.PortfolioPath)
		if err != nil {
			return nil, fmt.Errorf("open portfolio: %w", err)
		}
		defer func() { _ = f.Close() }()
		drivers, err := portfolio.ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("read portfolio %s: %w", cfg.PortfolioPath, err)
		}
		return drivers, nil
	}

	gen := portfolio.NewGenerator(cfg.StartMonth)
	return gen.Generate(ctx, simrand.Derive(cfg.Seed, "portfolio"), cfg.Drivers, cfg.Mix)
}

// openStore returns nil when no feature store is configured.
func openStore(ctx context.Context, cfg *config.Config) (featurestore.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		s, err := featurestore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		go metrics.StartDBStatsCollector(ctx, s.DB(), 15*time.Second)
		return s, nil
	case cfg.SQLitePath != "":
		s, err := featurestore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		go metrics.StartDBStatsCollector(ctx, s.DB(), 15*time.Second)
		return s, nil
	default:
		return nil, nil
	}
}

func buildEnricher(cfg *config.Config, breaker *circuitbreaker.Breaker) (*enrich.Enricher, error) {
	opts := []enrich.Option{
		enrich.WithBreaker(breaker),
		enrich.WithLimiter(ratelimit.New(ratelimit.Config{BurstSize: 1})),
		enrich.WithSamplesPerTrip(cfg.SamplesPerTrip),
	}
	for kind, pc := range cfg.Providers {
		opts = append(opts, enrich.WithPoolConfig(kind, pc))
	}

	if !cfg.IsLive() {
		w, s, t := enrich.Simulated(cfg.Seed, enrich.Fault{FailureRate: cfg.FaultRate})
		return enrich.New(w, s, t, opts...), nil
	}

	weatherCache, err := enrich.NewWeatherCache(enrich.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	speedCache, err := enrich.NewSpeedLimitCache(cfg.SpeedLimitCacheSize)
	if err != nil {
		return nil, err
	}
	opts = append(opts, enrich.WithWeatherCache(weatherCache), enrich.WithSpeedLimitCache(speedCache))

	client := &http.Client{Timeout: 30 * time.Second}
	return enrich.New(
		enrich.NewOpenMeteo(cfg.OpenMeteoURL, client),
		enrich.NewOverpass(cfg.OverpassURL, client),
		enrich.NewChicagoTraffic(cfg.ChicagoTrafficURL, cfg.ChicagoAppToken, client),
		opts...,
	), nil
}

// writeOutput writes the feature table atomically via a temp file.
func writeOutput(path string, recs []features.Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".features-*.csv")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := features.WriteCSV(tmp, recs); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
