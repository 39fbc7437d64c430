package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mbd888/drivesim/internal/circuitbreaker"
	"github.com/mbd888/drivesim/internal/metrics"
	"github.com/mbd888/drivesim/internal/ratelimit"
)

// PoolConfig bounds calls to one provider.
type PoolConfig struct {
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	MinDelay    time.Duration `yaml:"min_delay" json:"min_delay"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultPoolConfig returns the limits used for a kind with no defaults of
// its own.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency: 4,
		MinDelay:    0,
		Timeout:     2 * time.Second,
	}
}

// livePools holds per-provider limits for the public APIs. Overpass is the
// strictest about concurrent clients.
var livePools = map[string]PoolConfig{
	KindWeather:    {Concurrency: 4, MinDelay: 200 * time.Millisecond, Timeout: 10 * time.Second},
	KindSpeedLimit: {Concurrency: 1, MinDelay: time.Second, Timeout: 25 * time.Second},
	KindTraffic:    {Concurrency: 2, MinDelay: 200 * time.Millisecond, Timeout: 10 * time.Second},
}

// PoolDefaults returns the limits for kind. Live providers are spaced out;
// simulated ones keep the same concurrency bounds without a delay.
func PoolDefaults(kind string, live bool) PoolConfig {
	cfg, ok := livePools[kind]
	if !ok {
		return DefaultPoolConfig()
	}
	if !live {
		cfg.MinDelay = 0
		cfg.Timeout = DefaultPoolConfig().Timeout
	}
	return cfg
}

// ProviderStats counts calls made through a pool.
type ProviderStats struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
}

// Pool guards one provider kind. Calls never retry.
type Pool struct {
	kind    string
	sem     *semaphore.Weighted
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	timeout time.Duration

	calls    atomic.Int64
	failures atomic.Int64
}

// NewPool creates a pool for kind. limiter and breaker may be shared across
// pools since they are keyed by kind.
func NewPool(kind string, cfg PoolConfig, limiter *ratelimit.Limiter, breaker *circuitbreaker.Breaker) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{BurstSize: 1})
	}
	if breaker == nil {
		breaker = circuitbreaker.New(5, 30*time.Second)
	}
	limiter.SetInterval(kind, cfg.MinDelay)
	return &Pool{
		kind:    kind,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter: limiter,
		breaker: breaker,
		timeout: cfg.Timeout,
	}
}

// Kind returns the provider key.
func (p *Pool) Kind() string { return p.kind }

// Stats returns the pool's call counters.
func (p *Pool) Stats() ProviderStats {
	return ProviderStats{Calls: p.calls.Load(), Failures: p.failures.Load()}
}

// Call runs fn through p. A done parent context is returned as ctx.Err();
// every other failure comes back as a *Failure.
func Call[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if !p.breaker.Allow(p.kind) {
		p.failures.Add(1)
		metrics.ProviderCallsTotal.WithLabelValues(p.kind, ReasonCircuitOpen).Inc()
		return zero, &Failure{Provider: p.kind, Reason: ReasonCircuitOpen, Err: ErrCircuitOpen}
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, ctx.Err()
	}
	defer p.sem.Release(1)

	if err := p.limiter.Wait(ctx, p.kind); err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, p.fail(ReasonError, err)
	}

	p.calls.Add(1)
	inFlight := metrics.ProviderInFlight.WithLabelValues(p.kind)
	inFlight.Inc()
	defer inFlight.Dec()

	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn(callCtx)
		ch <- result{v: v, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-callCtx.Done():
		r.err = callCtx.Err()
	}
	metrics.ProviderCallDuration.WithLabelValues(p.kind).Observe(time.Since(start).Seconds())

	if r.err == nil {
		p.breaker.RecordSuccess(p.kind)
		metrics.ProviderCallsTotal.WithLabelValues(p.kind, "ok").Inc()
		return r.v, nil
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	reason := ReasonError
	if errors.Is(r.err, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	p.breaker.RecordFailure(p.kind)
	return zero, p.fail(reason, r.err)
}

func (p *Pool) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Pool) fail(reason string, err error) *Failure {
	p.failures.Add(1)
	metrics.ProviderCallsTotal.WithLabelValues(p.kind, reason).Inc()
	return &Failure{Provider: p.kind, Reason: reason, Err: err}
}
