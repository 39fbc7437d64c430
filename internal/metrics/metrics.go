// Package metrics provides Prometheus instrumentation for simulation runs.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts ops-server requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivesim",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drivesim",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ProviderCallsTotal counts context-provider calls by provider and result
	// (ok, error, timeout, circuit_open).
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivesim",
			Subsystem: "enrich",
			Name:      "provider_calls_total",
			Help:      "Context provider calls by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// ProviderCallDuration observes provider latency.
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drivesim",
			Subsystem: "enrich",
			Name:      "provider_call_duration_seconds",
			Help:      "Context provider call duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)

	// ProviderCacheLookupsTotal counts cache lookups ahead of the provider
	// pools by provider and result (hit, miss).
	ProviderCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivesim",
			Subsystem: "enrich",
			Name:      "cache_lookups_total",
			Help:      "Context cache lookups by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// ProviderInFlight tracks calls currently holding a pool slot.
	ProviderInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drivesim",
			Subsystem: "enrich",
			Name:      "provider_in_flight",
			Help:      "Context provider calls currently in flight.",
		},
		[]string{"provider"},
	)

	// TripsGeneratedTotal counts trips that completed synthesis.
	TripsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "drivesim",
		Name:      "trips_generated_total",
		Help:      "Trips synthesized and aggregated.",
	})

	// TripsSkippedTotal counts trips dropped by reason.
	TripsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivesim",
			Name:      "trips_skipped_total",
			Help:      "Trips skipped by reason.",
		},
		[]string{"reason"},
	)

	// RecordsEmittedTotal counts monthly feature records produced.
	RecordsEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "drivesim",
		Name:      "records_emitted_total",
		Help:      "Monthly feature records emitted.",
	})

	// AggregationSkipsTotal counts driver-months skipped on aggregation errors.
	AggregationSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "drivesim",
		Name:      "aggregation_skips_total",
		Help:      "Driver-months skipped because aggregation failed.",
	})

	// DriversTotal counts driver pipelines by outcome.
	DriversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivesim",
			Name:      "drivers_total",
			Help:      "Driver pipelines by outcome.",
		},
		[]string{"outcome"},
	)

	// DriverDuration observes the wall time of one driver pipeline.
	DriverDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "drivesim",
		Name:      "driver_pipeline_duration_seconds",
		Help:      "Driver pipeline duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// StoreWritesTotal counts feature-store batch writes by store and result.
	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivesim",
			Name:      "store_writes_total",
			Help:      "Feature store batch writes by store and result.",
		},
		[]string{"store", "result"},
	)

	// ActiveDrivers tracks driver pipelines currently running.
	ActiveDrivers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "drivesim",
		Name:      "active_drivers",
		Help:      "Driver pipelines currently running.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "drivesim", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "drivesim", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "drivesim", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderCallsTotal,
		ProviderCallDuration,
		ProviderInFlight,
		ProviderCacheLookupsTotal,
		TripsGeneratedTotal,
		TripsSkippedTotal,
		RecordsEmittedTotal,
		AggregationSkipsTotal,
		DriversTotal,
		DriverDuration,
		StoreWritesTotal,
		ActiveDrivers,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
