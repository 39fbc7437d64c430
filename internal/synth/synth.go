// Package synth expands scheduled trips into GPS and IMU streams.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/mbd888/drivesim/internal/geo"
	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// ErrInvalidProfile is wrapped by GenerationErrors caused by a malformed trip profile.
var ErrInvalidProfile = errors.New("invalid trip profile")

// GenerationError reports a trip that could not be synthesized. The trip is skipped.
type GenerationError struct {
	TripID string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("synthesize trip %s: %v", e.TripID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Sampling densities and noise.
const (
	gpsPerMinute      = 2.0
	imuPerMinute      = 4.0
	knotsPerMinute    = 0.5
	minSpeedKnots     = 10
	positionJitterDeg = 0.0001
	stopSlowdown      = 0.6
	minKnotSpeed      = 5.0
)

// Synthesizer builds telemetry streams from trip profiles.
type Synthesizer struct{}

// New creates a synthesizer.
func New() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize expands p into a trip with GPS, IMU, phone-usage and quality data.
// Events and context are filled in by later stages.
func (s *Synthesizer) Synthesize(rng *rand.Rand, p telemetry.TripProfile, params persona.Params) (*telemetry.Trip, error) {
	if err := checkProfile(p); err != nil {
		return nil, &GenerationError{TripID: p.ID, Err: err}
	}

	trip := &telemetry.Trip{
		ID:       p.ID,
		DriverID: p.DriverID,
		Type:     p.Type,
		Start:    p.Start,
		End:      p.End(),
	}

	minutes := p.Duration.Minutes()
	knots := speedProfile(rng, p.TargetSpeedMPH, minutes)
	trip.GPS = gpsTrack(rng, p, knots, minutes)
	trip.IMU = imuStream(rng, p, params.JerkMultiplier, minutes)

	summarize(trip)
	trip.Phone = phoneUsage(rng, p.Duration, params.PhoneUsage)
	trip.Quality.CompletenessPct = simrand.Uniform(rng, 92, 100)
	trip.Quality.Confidence = simrand.Uniform(rng, 0.7, 1.0)

	if err := trip.Validate(); err != nil {
		return nil, &GenerationError{TripID: p.ID, Err: err}
	}
	return trip, nil
}

func checkProfile(p telemetry.TripProfile) error {
	switch {
	case p.Duration <= 0:
		return fmt.Errorf("%w: duration %s", ErrInvalidProfile, p.Duration)
	case !p.Type.Valid():
		return fmt.Errorf("%w: trip type %q", ErrInvalidProfile, p.Type)
	case !geo.Valid(p.OriginLat, p.OriginLon):
		return fmt.Errorf("%w: origin %v,%v", ErrInvalidProfile, p.OriginLat, p.OriginLon)
	case !geo.Valid(p.DestLat, p.DestLon):
		return fmt.Errorf("%w: destination %v,%v", ErrInvalidProfile, p.DestLat, p.DestLon)
	case !(p.TargetSpeedMPH > 0) || math.IsInf(p.TargetSpeedMPH, 0):
		return fmt.Errorf("%w: target speed %v", ErrInvalidProfile, p.TargetSpeedMPH)
	}
	return nil
}

// speedProfile returns knot speeds along the trip; the first and last two
// knots are slowed to model pulling away from and into stops.
func speedProfile(rng *rand.Rand, target, minutes float64) []float64 {
	n := max(minSpeedKnots, int(minutes*knotsPerMinute))
	knots := make([]float64, n)
	for i := range knots {
		v := target * simrand.Uniform(rng, 0.8, 1.2)
		if i < 2 || i >= n-2 {
			v *= stopSlowdown
		}
		knots[i] = simrand.Clamp(v, minKnotSpeed, telemetry.MaxSimSpeedMPH)
	}
	return knots
}

func gpsTrack(rng *rand.Rand, p telemetry.TripProfile, knots []float64, minutes float64) []telemetry.GPSPoint {
	n := max(telemetry.MinGPSPoints, int(minutes*gpsPerMinute))
	points := make([]telemetry.GPSPoint, n)
	for i := range points {
		frac := float64(i) / float64(n-1)
		lat, lon := geo.Interpolate(p.OriginLat, p.OriginLon, p.DestLat, p.DestLon, frac)
		lat += simrand.Normal(rng, 0, positionJitterDeg)
		lon += simrand.Normal(rng, 0, positionJitterDeg)

		k := min(int(frac*float64(len(knots))), len(knots)-1)
		speed := simrand.Clamp(knots[k]*simrand.Uniform(rng, 0.9, 1.1), 0, telemetry.MaxSimSpeedMPH)

		points[i] = telemetry.GPSPoint{
			Timestamp:  p.Start.Add(time.Duration(frac * float64(p.Duration))),
			Lat:        lat,
			Lon:        lon,
			AltitudeFt: simrand.Uniform(rng, 580, 620),
			AccuracyM:  simrand.Uniform(rng, 3, 15),
			SpeedMPH:   speed,
		}
	}
	for i := 0; i < n-1; i++ {
		points[i].Heading = geo.Bearing(points[i].Lat, points[i].Lon, points[i+1].Lat, points[i+1].Lon)
	}
	points[n-1].Heading = points[n-2].Heading
	return points
}

func imuStream(rng *rand.Rand, p telemetry.TripProfile, jerk, minutes float64) []telemetry.IMUReading {
	if jerk <= 0 {
		jerk = 1
	}
	n := max(telemetry.MinIMUReadings, int(minutes*imuPerMinute))
	readings := make([]telemetry.IMUReading, n)
	for i := range readings {
		frac := float64(i) / float64(n-1)
		readings[i] = telemetry.IMUReading{
			Timestamp: p.Start.Add(time.Duration(frac * float64(p.Duration))),
			AccelX:    simrand.Normal(rng, 0, 0.05*jerk),
			AccelY:    simrand.Normal(rng, 0, 0.03*jerk),
			AccelZ:    simrand.Normal(rng, 1, 0.02),
			GyroX:     simrand.Normal(rng, 0, 1),
			GyroY:     simrand.Normal(rng, 0, 1),
			GyroZ:     simrand.Normal(rng, 0, 2),
		}
	}
	return readings
}

// summarize fills distance, speed and accuracy aggregates from the GPS track.
func summarize(trip *telemetry.Trip) {
	var dist, speedSum, accSum, maxSpeed float64
	for i, pt := range trip.GPS {
		if i > 0 {
			prev := trip.GPS[i-1]
			dist += geo.DistanceMiles(prev.Lat, prev.Lon, pt.Lat, pt.Lon)
		}
		speedSum += pt.SpeedMPH
		accSum += pt.AccuracyM
		maxSpeed = math.Max(maxSpeed, pt.SpeedMPH)
	}
	n := float64(len(trip.GPS))
	trip.DistanceMiles = dist
	trip.AvgSpeedMPH = speedSum / n
	trip.MaxSpeedMPH = maxSpeed
	trip.Quality.GPSAccuracyM = accSum / n
}

func phoneUsage(rng *rand.Rand, d time.Duration, share float64) telemetry.PhoneUsage {
	if share <= 0 {
		return telemetry.PhoneUsage{}
	}
	screen := min(time.Duration(float64(d)*share*simrand.Uniform(rng, 0.5, 1.5)), d)
	call := time.Duration(float64(screen) * simrand.Uniform(rng, 0.1, 0.4))
	handheld := time.Duration(float64(screen) * simrand.Uniform(rng, 0.6, 0.9))
	return telemetry.PhoneUsage{
		ScreenOn:       screen,
		Call:           call,
		Handheld:       handheld,
		HandheldEvents: int(math.Round(handheld.Minutes())),
	}
}
