// Package events injects behavioral events into synthesized trips at
// persona-conditioned densities.
//
// Detection here is a calibrated stochastic process over IMU samples: the
// expected number of events of each type on a trip equals the driver's
// per-100-mile rate times the trip's miles.
package events

import (
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

type shape struct {
	severity persona.Range
	gForce   persona.Range
	duration persona.Range // seconds
}

var shapes = map[telemetry.EventType]shape{
	telemetry.EventHardBrake:   {persona.Range{Min: 0.4, Max: 1.0}, persona.Range{Min: -0.8, Max: -0.3}, persona.Range{Min: 1, Max: 4}},
	telemetry.EventRapidAccel:  {persona.Range{Min: 0.4, Max: 0.9}, persona.Range{Min: 0.3, Max: 0.7}, persona.Range{Min: 3, Max: 8}},
	telemetry.EventHarshCorner: {persona.Range{Min: 0.3, Max: 0.9}, persona.Range{Min: 0.3, Max: 0.6}, persona.Range{Min: 2, Max: 5}},
	telemetry.EventSwerving:    {persona.Range{Min: 0.3, Max: 0.8}, persona.Range{Min: 0.2, Max: 0.5}, persona.Range{Min: 1, Max: 3}},
	telemetry.EventSpeeding:    {persona.Range{}, persona.Range{}, persona.Range{Min: 30, Max: 120}},
}

var overLimit = persona.Range{Min: 5, Max: 25}

// Detector emits behavioral events for a trip.
type Detector struct{}

// New creates a detector.
func New() *Detector {
	return &Detector{}
}

// SampleProbability converts a per-100-mile rate into a per-IMU-sample probability.
func SampleProbability(ratePer100, miles float64, samples int) float64 {
	if samples <= 0 || !(ratePer100 > 0) || !(miles > 0) || math.IsInf(ratePer100, 0) || math.IsInf(miles, 0) {
		return 0
	}
	return simrand.Clamp(ratePer100*(miles/100)/float64(samples), 0, 1)
}

// Detect draws events for every event type against every IMU sample and
// returns them in time order. Zero events is a valid result.
func (d *Detector) Detect(rng *rand.Rand, trip *telemetry.Trip, params persona.Params) []telemetry.BehavioralEvent {
	if len(trip.IMU) == 0 || len(trip.GPS) == 0 {
		return nil
	}

	var out []telemetry.BehavioralEvent
	for _, typ := range telemetry.EventTypes {
		p := SampleProbability(params.EventRate(typ), trip.DistanceMiles, len(trip.IMU))
		if p == 0 {
			continue
		}
		for _, r := range trip.IMU {
			if rng.Float64() >= p {
				continue
			}
			out = append(out, newEvent(rng, typ, r, trip.NearestGPS(r.Timestamp)))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func newEvent(rng *rand.Rand, typ telemetry.EventType, r telemetry.IMUReading, at telemetry.GPSPoint) telemetry.BehavioralEvent {
	sh := shapes[typ]
	ev := telemetry.BehavioralEvent{
		Timestamp: r.Timestamp,
		Type:      typ,
		Duration:  time.Duration(sh.duration.Sample(rng) * float64(time.Second)),
		SpeedMPH:  at.SpeedMPH,
	}

	switch typ {
	case telemetry.EventSpeeding:
		over := overLimit.Sample(rng)
		ev.SpeedOverLimitMPH = over
		ev.Severity = math.Min(1, over/overLimit.Max)
	case telemetry.EventHardBrake, telemetry.EventRapidAccel, telemetry.EventHarshCorner, telemetry.EventSwerving:
		ev.Severity = sh.severity.Sample(rng)
		ev.GForce = sh.gForce.Sample(rng)
	}
	return ev
}
