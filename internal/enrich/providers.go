// Package enrich attaches weather, posted speed limit and traffic context to
// trips. Each provider sits behind a bounded, rate-limited, timeout-guarded
// pool; a failed lookup degrades to a neutral default for that field only.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/drivesim/internal/telemetry"
)

// Provider keys. They label pools, breakers, limiters and metrics.
const (
	KindWeather    = "weather"
	KindSpeedLimit = "speed_limit"
	KindTraffic    = "traffic"
)

// Kinds lists provider keys in a stable order.
var Kinds = []string{KindWeather, KindSpeedLimit, KindTraffic}

// Failure reasons.
const (
	ReasonError       = "error"
	ReasonTimeout     = "timeout"
	ReasonCircuitOpen = "circuit_open"
)

var (
	ErrCircuitOpen  = errors.New("enrich: circuit open")
	ErrNoData       = errors.New("enrich: provider returned no data")
	ErrUnknownKind  = errors.New("enrich: unknown provider kind")
	ErrBadResponse  = errors.New("enrich: unexpected provider response")
	ErrInjectedFail = errors.New("enrich: simulated provider failure")
)

// Failure is an enrichment lookup that could not be resolved. The caller
// substitutes the neutral default for the field and keeps going.
type Failure struct {
	Provider string
	Reason   string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("enrich %s: %s: %v", f.Provider, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Weather is the condition and temperature at a point in time.
type Weather struct {
	Condition    telemetry.WeatherCondition `json:"condition"`
	TemperatureF float64                    `json:"temperature_f"`
}

// SpeedLimit is the posted limit and road class at a point.
type SpeedLimit struct {
	LimitMPH float64            `json:"limit_mph"`
	Road     telemetry.RoadType `json:"road_type"`
}

// WeatherProvider resolves weather for a location and time.
type WeatherProvider interface {
	Name() string
	Weather(ctx context.Context, lat, lon float64, at time.Time) (Weather, error)
}

// SpeedLimitProvider resolves the posted limit for a location.
type SpeedLimitProvider interface {
	Name() string
	SpeedLimit(ctx context.Context, lat, lon float64) (SpeedLimit, error)
}

// TrafficProvider resolves congestion for a location and time.
type TrafficProvider interface {
	Name() string
	Traffic(ctx context.Context, lat, lon float64, at time.Time) (telemetry.TrafficLevel, error)
}

// NeutralWeather is used when the weather lookup fails.
func NeutralWeather() Weather {
	return Weather{Condition: telemetry.WeatherClear, TemperatureF: 70}
}

// NeutralSpeedLimit infers a limit from the observed speed when the lookup fails.
func NeutralSpeedLimit(observedMPH float64) SpeedLimit {
	switch {
	case observedMPH > 50:
		return SpeedLimit{LimitMPH: 55, Road: telemetry.RoadHighway}
	case observedMPH > 25:
		return SpeedLimit{LimitMPH: 35, Road: telemetry.RoadArterial}
	default:
		return SpeedLimit{LimitMPH: 25, Road: telemetry.RoadResidential}
	}
}

// NeutralTraffic is used when the traffic lookup fails.
const NeutralTraffic = telemetry.TrafficModerate
