package enrich

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/mbd888/drivesim/internal/geo"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// Fault injects latency and failures into a simulated provider. Failures are
// a deterministic function of the lookup inputs.
type Fault struct {
	FailureRate float64
	Latency     time.Duration
}

func (f Fault) apply(ctx context.Context, rng *rand.Rand) error {
	if f.Latency > 0 {
		t := time.NewTimer(f.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if f.FailureRate > 0 && rng.Float64() < f.FailureRate {
		return ErrInjectedFail
	}
	return nil
}

func cellParts(lat, lon, precision float64) (string, string) {
	x, y := geo.CellKey(lat, lon, precision)
	return strconv.FormatInt(x, 10), strconv.FormatInt(y, 10)
}

// SimulatedWeather draws seasonal weather per ~5 km cell and hour.
type SimulatedWeather struct {
	Seed  uint64
	Fault Fault
}

func (s *SimulatedWeather) Name() string { return "simulated_weather" }

func (s *SimulatedWeather) Weather(ctx context.Context, lat, lon float64, at time.Time) (Weather, error) {
	x, y := cellParts(lat, lon, 0.05)
	rng := simrand.Derive(s.Seed, KindWeather, x, y, at.UTC().Format("2006010215"))
	if err := s.Fault.apply(ctx, rng); err != nil {
		return Weather{}, err
	}
	return SeasonalWeather(rng, at.Month()), nil
}

// SeasonalWeather applies the seasonal condition and temperature rules.
func SeasonalWeather(rng *rand.Rand, m time.Month) Weather {
	var (
		precip  telemetry.WeatherCondition
		precipP float64
		cloudyP float64
		tempLo  float64
		tempHi  float64
	)
	switch m {
	case time.December, time.January, time.February:
		precip, precipP, cloudyP, tempLo, tempHi = telemetry.WeatherSnow, 0.3, 0.5, 20, 45
	case time.June, time.July, time.August:
		precip, precipP, cloudyP, tempLo, tempHi = telemetry.WeatherRain, 0.2, 0.3, 65, 90
	default:
		precip, precipP, cloudyP, tempLo, tempHi = telemetry.WeatherRain, 0.25, 0.4, 45, 75
	}

	cond := telemetry.WeatherClear
	switch {
	case rng.Float64() < precipP:
		cond = precip
	case rng.Float64() < cloudyP:
		cond = telemetry.WeatherCloudy
	}
	return Weather{Condition: cond, TemperatureF: simrand.Uniform(rng, tempLo, tempHi)}
}

// SimulatedSpeedLimit assigns a road class per ~1 km grid cell.
type SimulatedSpeedLimit struct {
	Seed  uint64
	Fault Fault
}

func (s *SimulatedSpeedLimit) Name() string { return "simulated_speed_limit" }

var simulatedRoads = []struct {
	limit  float64
	road   telemetry.RoadType
	weight float64
}{
	{25, telemetry.RoadResidential, 0.35},
	{30, telemetry.RoadUrban, 0.25},
	{35, telemetry.RoadArterial, 0.15},
	{45, telemetry.RoadArterial, 0.10},
	{55, telemetry.RoadHighway, 0.10},
	{65, telemetry.RoadHighway, 0.05},
}

func (s *SimulatedSpeedLimit) SpeedLimit(ctx context.Context, lat, lon float64) (SpeedLimit, error) {
	x, y := cellParts(lat, lon, 0.01)
	rng := simrand.Derive(s.Seed, KindSpeedLimit, x, y)
	if err := s.Fault.apply(ctx, rng); err != nil {
		return SpeedLimit{}, err
	}
	weights := make([]float64, len(simulatedRoads))
	for i, r := range simulatedRoads {
		weights[i] = r.weight
	}
	r := simulatedRoads[simrand.Weighted(rng, weights)]
	return SpeedLimit{LimitMPH: r.limit, Road: r.road}, nil
}

// SimulatedTraffic derives congestion from the hour of day.
type SimulatedTraffic struct {
	Seed  uint64
	Fault Fault
}

func (s *SimulatedTraffic) Name() string { return "simulated_traffic" }

func (s *SimulatedTraffic) Traffic(ctx context.Context, lat, lon float64, at time.Time) (telemetry.TrafficLevel, error) {
	x, y := cellParts(lat, lon, 0.01)
	rng := simrand.Derive(s.Seed, KindTraffic, x, y, at.UTC().Format("2006010215"))
	if err := s.Fault.apply(ctx, rng); err != nil {
		return "", err
	}
	return HourlyTraffic(rng, at.Hour()), nil
}

// HourlyTraffic applies the time-of-day congestion rules.
func HourlyTraffic(rng *rand.Rand, hour int) telemetry.TrafficLevel {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		if rng.Float64() < 0.5 {
			return telemetry.TrafficHeavy
		}
		return telemetry.TrafficModerate
	case hour >= 10 && hour <= 16:
		if rng.Float64() < 0.5 {
			return telemetry.TrafficModerate
		}
		return telemetry.TrafficLight
	default:
		return telemetry.TrafficLight
	}
}

// Simulated returns the three simulated providers for seed.
func Simulated(seed uint64, fault Fault) (*SimulatedWeather, *SimulatedSpeedLimit, *SimulatedTraffic) {
	return &SimulatedWeather{Seed: seed, Fault: fault},
		&SimulatedSpeedLimit{Seed: seed, Fault: fault},
		&SimulatedTraffic{Seed: seed, Fault: fault}
}

// String is used in startup logs.
func (f Fault) String() string {
	return fmt.Sprintf("failure_rate=%.2f latency=%s", f.FailureRate, f.Latency)
}
