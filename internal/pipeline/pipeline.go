// Package pipeline runs the per-driver simulation: schedule, synthesize,
// inject events, enrich, aggregate and label, across a bounded worker pool.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/drivesim/internal/aggregate"
	"github.com/mbd888/drivesim/internal/enrich"
	"github.com/mbd888/drivesim/internal/events"
	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/geo"
	"github.com/mbd888/drivesim/internal/labeler"
	"github.com/mbd888/drivesim/internal/logging"
	"github.com/mbd888/drivesim/internal/metrics"
	"github.com/mbd888/drivesim/internal/portfolio"
	"github.com/mbd888/drivesim/internal/schedule"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/synth"
	"github.com/mbd888/drivesim/internal/telemetry"
	"github.com/mbd888/drivesim/internal/traces"
)

// Config sizes a run.
type Config struct {
	Seed       uint64
	Start      time.Time
	Months     int
	Workers    int
	TripBuffer int
}

// Result is the output table and run summary.
type Result struct {
	Records []features.Record
	Summary Summary
}

// Pipeline wires the generators, the enricher and the aggregator.
type Pipeline struct {
	cfg       Config
	scheduler *schedule.Scheduler
	synth     *synth.Synthesizer
	detector  *events.Detector
	enricher  *enrich.Enricher
	logger    *slog.Logger
}

// New creates a pipeline over the Chicago service area.
func New(cfg Config, enricher *enrich.Enricher) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TripBuffer <= 0 {
		cfg.TripBuffer = 1
	}
	cfg.Start = schedule.MonthStart(cfg.Start.UTC())
	return &Pipeline{
		cfg:       cfg,
		scheduler: schedule.New(geo.Chicago),
		synth:     synth.New(),
		detector:  events.New(),
		enricher:  enricher,
		logger:    slog.Default(),
	}
}

// WithLogger sets the base logger.
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	p.logger = l
	return p
}

// WithArea replaces the service area used for trip origins.
func (p *Pipeline) WithArea(b geo.Bounds) *Pipeline {
	p.scheduler = schedule.New(b)
	return p
}

// Run simulates every driver. Only an invalid portfolio is an error; a
// canceled ctx returns the months finalized so far with Summary.Canceled set.
func (p *Pipeline) Run(ctx context.Context, runID string, drivers []portfolio.Driver) (*Result, error) {
	started := time.Now()
	if err := portfolio.Validate(drivers); err != nil {
		return nil, err
	}

	ctx = logging.WithLogger(logging.WithRunID(ctx, runID), p.logger)
	ctx, span := traces.StartSpan(ctx, "pipeline.run", traces.RunID(runID))
	defer span.End()

	log := logging.L(ctx)
	log.Info("run started", "drivers", len(drivers), "months", p.cfg.Months,
		"start", features.MonthKey(p.cfg.Start), "workers", p.cfg.Workers)

	var c counters
	out := make(chan features.Record, p.cfg.TripBuffer)
	var recs []features.Record
	claims := 0
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		seen := make(map[features.Key]bool)
		for r := range out {
			if seen[r.Key()] {
				c.aggregationSkips.Add(1)
				metrics.AggregationSkipsTotal.Inc()
				log.Warn("duplicate record dropped", "driver_id", r.DriverID, "month", r.Month)
				continue
			}
			seen[r.Key()] = true
			if r.HadClaimInPeriod {
				claims++
			}
			recs = append(recs, r)
			metrics.RecordsEmittedTotal.Inc()
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	for _, d := range drivers {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.driver(ctx, d, out, &c)
			return nil
		})
	}
	_ = g.Wait()
	close(out)
	<-collected

	slices.SortFunc(recs, func(a, b features.Record) int {
		return cmp.Or(cmp.Compare(a.DriverID, b.DriverID), cmp.Compare(a.Month, b.Month))
	})

	sum := Summary{
		RunID:            runID,
		StartedAt:        started.UTC(),
		Duration:         time.Since(started),
		DriversRequested: len(drivers),
		DriversCompleted: int(c.completed.Load()),
		DriversFailed:    int(c.failed.Load()),
		TripsGenerated:   c.tripsGenerated.Load(),
		TripsSkipped:     c.tripsSkipped.Load(),
		RecordsEmitted:   len(recs),
		AggregationSkips: c.aggregationSkips.Load(),
		Claims:           claims,
		Canceled:         ctx.Err() != nil,
	}
	if p.enricher != nil {
		sum.Providers = p.enricher.Stats()
	}
	log.Info("run finished", "records", sum.RecordsEmitted, "drivers_completed", sum.DriversCompleted,
		"trips_skipped", sum.TripsSkipped, "aggregation_skips", sum.AggregationSkips,
		"canceled", sum.Canceled, "duration", sum.Duration)
	return &Result{Records: recs, Summary: sum}, nil
}

// driver runs one driver's pipeline. Trips flow from the generator goroutine
// to the enrich/aggregate loop through a bounded channel.
func (p *Pipeline) driver(ctx context.Context, d portfolio.Driver, out chan<- features.Record, c *counters) {
	started := time.Now()
	metrics.ActiveDrivers.Inc()
	defer metrics.ActiveDrivers.Dec()
	defer func() { metrics.DriverDuration.Observe(time.Since(started).Seconds()) }()

	ctx = logging.WithDriverID(ctx, d.ID)
	ctx, span := traces.StartSpan(ctx, "pipeline.driver", traces.DriverID(d.ID))
	defer span.End()

	err := p.simulate(ctx, d, out, c)
	switch {
	case err == nil:
		c.completed.Add(1)
		metrics.DriversTotal.WithLabelValues("completed").Inc()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.DriversTotal.WithLabelValues("canceled").Inc()
	default:
		c.failed.Add(1)
		traces.Fail(span, err)
		metrics.DriversTotal.WithLabelValues("failed").Inc()
		logging.L(ctx).Error("driver failed", "error", err)
	}
}

func (p *Pipeline) simulate(ctx context.Context, d portfolio.Driver, out chan<- features.Record, c *counters) error {
	seed := p.cfg.Seed
	profiles := p.scheduler.Schedule(simrand.Derive(seed, d.ID, "schedule"), d, p.cfg.Start, p.cfg.Months)

	trips := make(chan *telemetry.Trip, p.cfg.TripBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(trips)
		for _, prof := range profiles {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := simrand.Derive(seed, d.ID, prof.ID)
			trip, err := p.synth.Synthesize(rng, prof, d.Persona)
			if err != nil {
				c.tripsSkipped.Add(1)
				metrics.TripsSkippedTotal.WithLabelValues("generation").Inc()
				logging.L(gctx).Warn("trip skipped", "trip_id", prof.ID, "error", err)
				continue
			}
			trip.Events = p.detector.Detect(rng, trip, d.Persona)
			select {
			case trips <- trip:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		agg := aggregate.New(d, p.cfg.Start, p.cfg.Months, simrand.Derive(seed, d.ID, "vehicle"))
		defer c.countSkips(agg)
		labelRNG := simrand.Derive(seed, d.ID, "label")
		emit := func(recs []features.Record, err error) {
			if err != nil {
				logging.L(gctx).Warn("driver-month skipped", "error", err)
			}
			if len(recs) > 0 {
				traces.Event(gctx, "months_finalized", traces.Month(recs[0].Month), traces.Records(len(recs)))
			}
			for i := range recs {
				labeler.Apply(labelRNG, &recs[i])
				out <- recs[i]
			}
		}

		for trip := range trips {
			if p.enricher != nil {
				samples, err := p.enricher.Enrich(gctx, trip)
				if err != nil {
					return fmt.Errorf("enrich %s: %w", trip.ID, err)
				}
				trip.Context = samples
			}
			c.tripsGenerated.Add(1)
			metrics.TripsGeneratedTotal.Inc()
			emit(agg.Add(trip))
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		emit(agg.Close())
		return nil
	})

	return g.Wait()
}
