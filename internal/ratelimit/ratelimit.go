// Package ratelimit spaces out calls to external providers.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures rate limiting
type Config struct {
	// MinInterval is the minimum spacing between calls for a key without its own setting
	MinInterval time.Duration
	// BurstSize allows brief bursts above the limit
	BurstSize int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MinInterval: 100 * time.Millisecond,
		BurstSize:   1,
	}
}

// Limiter tracks rate limits by key. Each key gets an independent token bucket.
type Limiter struct {
	cfg      Config
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a new rate limiter
func New(cfg Config) *Limiter {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	return &Limiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// SetInterval sets the minimum spacing for key, replacing any earlier setting
func (l *Limiter) SetInterval(key string, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[key]; ok {
		lim.SetLimit(limitFor(interval))
		return
	}
	l.limiters[key] = rate.NewLimiter(limitFor(interval), l.cfg.BurstSize)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(limitFor(l.cfg.MinInterval), l.cfg.BurstSize)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether a call for key may happen now, consuming a token if so
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Wait blocks until a call for key is permitted or ctx is done
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}
