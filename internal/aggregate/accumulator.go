package aggregate

import (
	"math"
	"time"

	"github.com/mbd888/drivesim/internal/telemetry"
)

type accumulator struct {
	trips   int
	seconds float64
	miles   float64

	speedSum float64
	speedN   int
	maxSpeed float64
	jerkSum  float64

	events map[telemetry.EventType]int

	nightMiles       float64
	lateWeekendMiles float64
	rushMiles        float64

	screenSeconds  float64
	callSeconds    float64
	handheldEvents int

	highwayMiles float64
	urbanMiles   float64
	precipMiles  float64
	heavyMiles   float64
	maxOverLimit float64

	accuracySum   float64
	confidenceSum float64
}

// IsNight reports 22:00-06:00.
func IsNight(t time.Time) bool {
	h := t.Hour()
	return h >= 22 || h < 6
}

// IsLateNightWeekend reports a night start on Friday or Saturday.
func IsLateNightWeekend(t time.Time) bool {
	wd := t.Weekday()
	return IsNight(t) && (wd == time.Friday || wd == time.Saturday)
}

// IsWeekdayRush reports Monday-Friday, 07:00-09:59 or 17:00-19:59.
func IsWeekdayRush(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := t.Hour()
	return (h >= 7 && h <= 9) || (h >= 17 && h <= 19)
}

func (a *accumulator) add(t *telemetry.Trip) {
	if a.events == nil {
		a.events = make(map[telemetry.EventType]int, len(telemetry.EventTypes))
	}
	miles := t.DistanceMiles
	a.trips++
	a.seconds += t.Duration().Seconds()
	a.miles += miles

	for _, p := range t.GPS {
		a.speedSum += p.SpeedMPH
		a.speedN++
		a.maxSpeed = math.Max(a.maxSpeed, p.SpeedMPH)
	}
	a.jerkSum += t.JerkRate()

	for _, e := range t.Events {
		a.events[e.Type]++
	}

	start := t.Start.UTC()
	if IsNight(start) {
		a.nightMiles += miles
	}
	if IsLateNightWeekend(start) {
		a.lateWeekendMiles += miles
	}
	if IsWeekdayRush(start) {
		a.rushMiles += miles
	}

	a.screenSeconds += t.Phone.ScreenOn.Seconds()
	a.callSeconds += t.Phone.Call.Seconds()
	a.handheldEvents += t.Phone.HandheldEvents

	if n := len(t.Context); n > 0 {
		share := miles / float64(n)
		for _, c := range t.Context {
			if c.RoadType == telemetry.RoadHighway {
				a.highwayMiles += share
			}
			if c.RoadType.Urban() {
				a.urbanMiles += share
			}
			if c.Weather.Precipitating() {
				a.precipMiles += share
			}
			if c.Traffic == telemetry.TrafficHeavy {
				a.heavyMiles += share
			}
		}
	}
	a.maxOverLimit = math.Max(a.maxOverLimit, t.MaxOverLimitMPH())

	a.accuracySum += t.Quality.GPSAccuracyM
	a.confidenceSum += t.Quality.Confidence
}
