package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/mbd888/drivesim/internal/aggregate"
	"github.com/mbd888/drivesim/internal/enrich"
	"github.com/mbd888/drivesim/internal/metrics"
)

// Summary reports what a run produced and what it had to skip.
type Summary struct {
	RunID            string                          `json:"run_id"`
	StartedAt        time.Time                       `json:"started_at"`
	Duration         time.Duration                   `json:"duration"`
	DriversRequested int                             `json:"drivers_requested"`
	DriversCompleted int                             `json:"drivers_completed"`
	DriversFailed    int                             `json:"drivers_failed"`
	TripsGenerated   int64                           `json:"trips_generated"`
	TripsSkipped     int64                           `json:"trips_skipped"`
	RecordsEmitted   int                             `json:"records_emitted"`
	AggregationSkips int64                           `json:"aggregation_skips"`
	Claims           int                             `json:"claims"`
	Providers        map[string]enrich.ProviderStats `json:"providers"`
	Canceled         bool                            `json:"canceled"`
}

// counters are shared by driver pipelines; atomics only.
type counters struct {
	completed        atomic.Int64
	failed           atomic.Int64
	tripsGenerated   atomic.Int64
	tripsSkipped     atomic.Int64
	aggregationSkips atomic.Int64
}

// countSkips adds the months agg dropped so far. Deferred by the consumer so
// canceled drivers still report them.
func (c *counters) countSkips(agg *aggregate.Aggregator) {
	if n := agg.Skipped(); n > 0 {
		c.aggregationSkips.Add(int64(n))
		metrics.AggregationSkipsTotal.Add(float64(n))
	}
}
