package enrich

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/drivesim/internal/circuitbreaker"
	"github.com/mbd888/drivesim/internal/logging"
	"github.com/mbd888/drivesim/internal/ratelimit"
	"github.com/mbd888/drivesim/internal/telemetry"
	"github.com/mbd888/drivesim/internal/traces"
)

// DefaultSamplesPerTrip is the target number of context samples per trip.
const DefaultSamplesPerTrip = 10

// Enricher resolves context samples for trips. Safe for concurrent use.
type Enricher struct {
	weather WeatherProvider
	speed   SpeedLimitProvider
	traffic TrafficProvider

	pools   map[string]*Pool
	configs map[string]PoolConfig
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	samples int

	weatherCache *WeatherCache
	speedCache   *SpeedLimitCache
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithPoolConfig overrides the limits for one provider kind.
func WithPoolConfig(kind string, cfg PoolConfig) Option {
	return func(e *Enricher) { e.configs[kind] = cfg }
}

// WithBreaker shares a circuit breaker, e.g. with the health registry.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(e *Enricher) { e.breaker = b }
}

// WithLimiter shares a rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Enricher) { e.limiter = l }
}

// WithWeatherCache answers repeated cell-hour lookups without a provider call.
func WithWeatherCache(c *WeatherCache) Option {
	return func(e *Enricher) { e.weatherCache = c }
}

// WithSpeedLimitCache answers repeated cell lookups without a provider call.
func WithSpeedLimitCache(c *SpeedLimitCache) Option {
	return func(e *Enricher) { e.speedCache = c }
}

// WithSamplesPerTrip sets the target sample count per trip.
func WithSamplesPerTrip(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.samples = n
		}
	}
}

// New creates an Enricher over the three providers.
func New(weather WeatherProvider, speed SpeedLimitProvider, traffic TrafficProvider, opts ...Option) *Enricher {
	e := &Enricher{
		weather: weather,
		speed:   speed,
		traffic: traffic,
		pools:   make(map[string]*Pool, len(Kinds)),
		configs: make(map[string]PoolConfig, len(Kinds)),
		samples: DefaultSamplesPerTrip,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.limiter == nil {
		e.limiter = ratelimit.New(ratelimit.Config{BurstSize: 1})
	}
	if e.breaker == nil {
		e.breaker = circuitbreaker.New(5, 30*time.Second)
	}
	for _, kind := range Kinds {
		cfg, ok := e.configs[kind]
		if !ok {
			cfg = PoolDefaults(kind, false)
		}
		e.pools[kind] = NewPool(kind, cfg, e.limiter, e.breaker)
	}
	return e
}

// Breaker returns the circuit breaker guarding the providers.
func (e *Enricher) Breaker() *circuitbreaker.Breaker { return e.breaker }

// Stats returns call counters per provider kind.
func (e *Enricher) Stats() map[string]ProviderStats {
	out := make(map[string]ProviderStats, len(e.pools))
	for kind, p := range e.pools {
		out[kind] = p.Stats()
	}
	return out
}

// SampleIndices picks every ⌊n/target⌋-th GPS index (stride at least 1).
func SampleIndices(n, target int) []int {
	if n <= 0 {
		return nil
	}
	if target <= 0 {
		target = DefaultSamplesPerTrip
	}
	stride := n / target
	if stride < 1 {
		stride = 1
	}
	idx := make([]int, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		idx = append(idx, i)
	}
	return idx
}

// Enrich returns one context sample per sampled GPS point. Provider failures
// leave the neutral default in place; only cancellation returns an error.
func (e *Enricher) Enrich(ctx context.Context, trip *telemetry.Trip) ([]telemetry.ContextSample, error) {
	ctx, span := traces.StartSpan(ctx, "enrich.trip", traces.TripID(trip.ID), traces.DriverID(trip.DriverID))
	defer span.End()

	idx := SampleIndices(len(trip.GPS), e.samples)
	out := make([]telemetry.ContextSample, len(idx))

	g, gctx := errgroup.WithContext(ctx)
	for i, gi := range idx {
		pt := trip.GPS[gi]
		s := &out[i]
		neutralLimit := NeutralSpeedLimit(pt.SpeedMPH)
		neutralWeather := NeutralWeather()
		*s = telemetry.ContextSample{
			Timestamp:     pt.Timestamp,
			Lat:           pt.Lat,
			Lon:           pt.Lon,
			PointSpeedMPH: pt.SpeedMPH,
			SpeedLimitMPH: neutralLimit.LimitMPH,
			RoadType:      neutralLimit.Road,
			Weather:       neutralWeather.Condition,
			TemperatureF:  neutralWeather.TemperatureF,
			Traffic:       NeutralTraffic,
		}

		// Each goroutine writes a disjoint set of fields.
		g.Go(func() error {
			w, err := cachedCall(gctx, e.pools[KindWeather],
				func() (Weather, bool) { return e.weatherCache.Get(pt.Lat, pt.Lon, pt.Timestamp) },
				func(w Weather) { e.weatherCache.Add(pt.Lat, pt.Lon, pt.Timestamp, w) },
				func(ctx context.Context) (Weather, error) {
					return e.weather.Weather(ctx, pt.Lat, pt.Lon, pt.Timestamp)
				})
			if err = e.absorb(ctx, trip, err); err != nil || !w.Condition.Valid() {
				return err
			}
			s.Weather, s.TemperatureF, s.WeatherResolved = w.Condition, w.TemperatureF, true
			return nil
		})
		g.Go(func() error {
			sl, err := cachedCall(gctx, e.pools[KindSpeedLimit],
				func() (SpeedLimit, bool) { return e.speedCache.Get(pt.Lat, pt.Lon) },
				func(sl SpeedLimit) { e.speedCache.Add(pt.Lat, pt.Lon, sl) },
				func(ctx context.Context) (SpeedLimit, error) {
					return e.speed.SpeedLimit(ctx, pt.Lat, pt.Lon)
				})
			if err = e.absorb(ctx, trip, err); err != nil || sl.LimitMPH <= 0 {
				return err
			}
			s.SpeedLimitMPH, s.RoadType, s.SpeedLimitResolved = sl.LimitMPH, sl.Road, true
			return nil
		})
		g.Go(func() error {
			lvl, err := Call(gctx, e.pools[KindTraffic], func(ctx context.Context) (telemetry.TrafficLevel, error) {
				return e.traffic.Traffic(ctx, pt.Lat, pt.Lon, pt.Timestamp)
			})
			if err = e.absorb(ctx, trip, err); err != nil || !lvl.Valid() {
				return err
			}
			s.Traffic, s.TrafficResolved = lvl, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// absorb turns a *Failure into nil after logging it. Anything else is a
// cancellation and is passed through.
func (e *Enricher) absorb(ctx context.Context, trip *telemetry.Trip, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		logging.L(ctx).Debug("context lookup failed, using neutral default",
			"trip_id", trip.ID, "provider", f.Provider, "reason", f.Reason, "error", f.Err)
		traces.Event(ctx, "context_fallback", traces.Provider(string(f.Provider)), traces.Reason(string(f.Reason)))
		return nil
	}
	return err
}
