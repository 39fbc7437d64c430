package enrich

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mbd888/drivesim/internal/geo"
	"github.com/mbd888/drivesim/internal/metrics"
)

// DefaultCacheSize bounds each lookup cache.
const DefaultCacheSize = 10000

type cellKey struct {
	x, y int64
	hour int64
}

// SpeedLimitCache memoizes successful limit lookups per ~100 m cell. The
// Enricher consults it before taking a pool slot, so hits are never
// throttled or counted as provider calls.
type SpeedLimitCache struct {
	cache *lru.Cache
}

// NewSpeedLimitCache returns a cache of size entries.
func NewSpeedLimitCache(size int) (*SpeedLimitCache, error) {
	cache, err := newLRU(size)
	if err != nil {
		return nil, fmt.Errorf("speed limit cache: %w", err)
	}
	return &SpeedLimitCache{cache: cache}, nil
}

func (c *SpeedLimitCache) key(lat, lon float64) cellKey {
	x, y := geo.CellKey(lat, lon, 0.001)
	return cellKey{x: x, y: y}
}

// Get returns the cached limit for the cell containing lat, lon. A nil cache
// always misses.
func (c *SpeedLimitCache) Get(lat, lon float64) (SpeedLimit, bool) {
	if c == nil {
		return SpeedLimit{}, false
	}
	v, ok := c.cache.Get(c.key(lat, lon))
	if !ok {
		return SpeedLimit{}, false
	}
	return v.(SpeedLimit), true
}

// Add stores sl for the cell containing lat, lon.
func (c *SpeedLimitCache) Add(lat, lon float64, sl SpeedLimit) {
	if c != nil {
		c.cache.Add(c.key(lat, lon), sl)
	}
}

// Len returns the number of cached cells.
func (c *SpeedLimitCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// WeatherCache memoizes successful weather lookups per ~5 km cell and hour.
type WeatherCache struct {
	cache *lru.Cache
}

// NewWeatherCache returns a cache of size entries.
func NewWeatherCache(size int) (*WeatherCache, error) {
	cache, err := newLRU(size)
	if err != nil {
		return nil, fmt.Errorf("weather cache: %w", err)
	}
	return &WeatherCache{cache: cache}, nil
}

func (c *WeatherCache) key(lat, lon float64, at time.Time) cellKey {
	x, y := geo.CellKey(lat, lon, 0.05)
	return cellKey{x: x, y: y, hour: at.Unix() / 3600}
}

// Get returns the cached weather for the cell-hour. A nil cache always misses.
func (c *WeatherCache) Get(lat, lon float64, at time.Time) (Weather, bool) {
	if c == nil {
		return Weather{}, false
	}
	v, ok := c.cache.Get(c.key(lat, lon, at))
	if !ok {
		return Weather{}, false
	}
	return v.(Weather), true
}

// Add stores w for the cell-hour.
func (c *WeatherCache) Add(lat, lon float64, at time.Time, w Weather) {
	if c != nil {
		c.cache.Add(c.key(lat, lon, at), w)
	}
}

// Len returns the number of cached cell-hours.
func (c *WeatherCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

func newLRU(size int) (*lru.Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return lru.New(size)
}

// cachedCall answers from the cache when it can and otherwise goes through
// the pool, caching only successful results.
func cachedCall[T any](ctx context.Context, p *Pool, get func() (T, bool), add func(T), fn func(context.Context) (T, error)) (T, error) {
	if v, ok := get(); ok {
		metrics.ProviderCacheLookupsTotal.WithLabelValues(p.kind, "hit").Inc()
		return v, nil
	}
	metrics.ProviderCacheLookupsTotal.WithLabelValues(p.kind, "miss").Inc()
	v, err := Call(ctx, p, fn)
	if err != nil {
		return v, err
	}
	add(v)
	return v, nil
}
