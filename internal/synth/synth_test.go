package synth

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

func profile(d time.Duration) telemetry.TripProfile {
	return telemetry.TripProfile{
		ID:             "driver_000001_trip_0001",
		DriverID:       "driver_000001",
		Start:          time.Date(2025, 2, 3, 8, 15, 0, 0, time.UTC),
		Duration:       d,
		Type:           telemetry.TripCommute,
		OriginLat:      41.80,
		OriginLon:      -87.70,
		DestLat:        41.90,
		DestLon:        -87.62,
		TargetSpeedMPH: 35,
	}
}

func params(jerk float64) persona.Params {
	return persona.Params{Type: persona.Average, JerkMultiplier: jerk, SpeedMultiplier: 1, PhoneUsage: 0.1}
}

func TestSynthesize_MinimumsForShortTrip(t *testing.T) {
	trip, err := New().Synthesize(simrand.New(1, 1), profile(90*time.Second), params(1))
	require.NoError(t, err)
	assert.Len(t, trip.GPS, telemetry.MinGPSPoints)
	assert.Len(t, trip.IMU, telemetry.MinIMUReadings)
	assert.True(t, trip.End.After(trip.Start))
}

func TestSynthesize_Invariants(t *testing.T) {
	rng := simrand.New(2, 2)
	for _, d := range []time.Duration{5 * time.Minute, 30 * time.Minute, 3 * time.Hour} {
		trip, err := New().Synthesize(rng, profile(d), params(1.5))
		require.NoError(t, err)

		assert.Equal(t, profile(d).End(), trip.End)
		assert.GreaterOrEqual(t, len(trip.GPS), int(d.Minutes()*2))
		assert.GreaterOrEqual(t, len(trip.IMU), int(d.Minutes()*4))
		for _, p := range trip.GPS {
			assert.GreaterOrEqual(t, p.SpeedMPH, 0.0)
			assert.LessOrEqual(t, p.SpeedMPH, telemetry.MaxSimSpeedMPH)
			assert.GreaterOrEqual(t, p.Heading, 0.0)
			assert.Less(t, p.Heading, 360.0)
		}
		assert.Equal(t, trip.Start, trip.GPS[0].Timestamp)
		assert.Equal(t, trip.End, trip.GPS[len(trip.GPS)-1].Timestamp)
		assert.Greater(t, trip.DistanceMiles, 7.0)
		assert.LessOrEqual(t, trip.MaxSpeedMPH, telemetry.MaxSimSpeedMPH)
		assert.True(t, trip.Phone.ScreenOn <= d)
		assert.True(t, trip.Phone.Call <= trip.Phone.ScreenOn)
		assert.True(t, trip.Phone.Handheld <= trip.Phone.ScreenOn)
		assert.GreaterOrEqual(t, trip.Quality.CompletenessPct, 92.0)
		assert.GreaterOrEqual(t, trip.Quality.GPSAccuracyM, 3.0)
		assert.LessOrEqual(t, trip.Quality.GPSAccuracyM, 15.0)
	}
}

func TestSynthesize_EndpointsSlowed(t *testing.T) {
	trip, err := New().Synthesize(simrand.New(3, 3), profile(60*time.Minute), params(1))
	require.NoError(t, err)

	// first knot covers the first tenth of the track at 0.6x
	assert.Less(t, trip.GPS[0].SpeedMPH, 35*1.2*0.6*1.1+1e-9)
	assert.Less(t, trip.GPS[len(trip.GPS)-1].SpeedMPH, 35*1.2*0.6*1.1+1e-9)
}

func TestSynthesize_JerkScalesWithPersona(t *testing.T) {
	smooth, err := New().Synthesize(simrand.New(4, 4), profile(60*time.Minute), params(0.5))
	require.NoError(t, err)
	rough, err := New().Synthesize(simrand.New(4, 4), profile(60*time.Minute), params(2.0))
	require.NoError(t, err)

	assert.Less(t, smooth.JerkRate(), rough.JerkRate())
	assert.InDelta(t, 10*0.5*math.Sqrt(0.05*0.05+0.03*0.03), smooth.JerkRate(), 0.05)

	var z float64
	for _, r := range rough.IMU {
		z += r.AccelZ
	}
	assert.InDelta(t, 1.0, z/float64(len(rough.IMU)), 0.01)
}

func TestSynthesize_Deterministic(t *testing.T) {
	a, err := New().Synthesize(simrand.New(5, 5), profile(20*time.Minute), params(1))
	require.NoError(t, err)
	b, err := New().Synthesize(simrand.New(5, 5), profile(20*time.Minute), params(1))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSynthesize_GenerationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*telemetry.TripProfile)
	}{
		{"zero duration", func(p *telemetry.TripProfile) { p.Duration = 0 }},
		{"bad origin", func(p *telemetry.TripProfile) { p.OriginLat = 123 }},
		{"bad destination", func(p *telemetry.TripProfile) { p.DestLon = math.NaN() }},
		{"bad type", func(p *telemetry.TripProfile) { p.Type = "joyride" }},
		{"no speed", func(p *telemetry.TripProfile) { p.TargetSpeedMPH = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile(10 * time.Minute)
			tt.mutate(&p)
			_, err := New().Synthesize(simrand.New(6, 6), p, params(1))

			var gerr *GenerationError
			require.True(t, errors.As(err, &gerr), "got %v", err)
			assert.Equal(t, p.ID, gerr.TripID)
			assert.True(t, errors.Is(err, ErrInvalidProfile))
		})
	}
}

func TestPhoneUsage_NoPhone(t *testing.T) {
	assert.Equal(t, telemetry.PhoneUsage{}, phoneUsage(simrand.New(7, 7), time.Hour, 0))
}
