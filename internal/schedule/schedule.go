// Package schedule lays out a driver's trips over a horizon of calendar months.
package schedule

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/mbd888/drivesim/internal/geo"
	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/portfolio"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

type slot struct {
	hour   int
	typ    telemetry.TripType
	weight float64
}

var weekdaySlots = []slot{
	{7, telemetry.TripCommute, 0.4},
	{8, telemetry.TripCommute, 0.6},
	{9, telemetry.TripErrand, 0.2},
	{12, telemetry.TripErrand, 0.3},
	{15, telemetry.TripErrand, 0.2},
	{17, telemetry.TripCommute, 0.5},
	{18, telemetry.TripCommute, 0.4},
	{19, telemetry.TripLeisure, 0.2},
	{20, telemetry.TripLeisure, 0.1},
}

var weekendSlots = []slot{
	{9, telemetry.TripLeisure, 0.2},
	{10, telemetry.TripLeisure, 0.3},
	{11, telemetry.TripErrand, 0.4},
	{14, telemetry.TripLeisure, 0.3},
	{16, telemetry.TripErrand, 0.2},
	{18, telemetry.TripLeisure, 0.2},
	{19, telemetry.TripLeisure, 0.3},
	{20, telemetry.TripLeisure, 0.2},
}

var nightHours = []int{22, 23, 0, 1, 2, 5}

// LongDistanceChance is the probability a weekend leisure trip becomes a long drive.
const LongDistanceChance = 0.05

type tripParams struct {
	minutes   persona.Range
	km        persona.Range
	baseSpeed float64
}

var paramsByType = map[telemetry.TripType]tripParams{
	telemetry.TripCommute:      {persona.Range{Min: 15, Max: 45}, persona.Range{Min: 8, Max: 25}, 35},
	telemetry.TripErrand:       {persona.Range{Min: 5, Max: 20}, persona.Range{Min: 2, Max: 10}, 25},
	telemetry.TripLeisure:      {persona.Range{Min: 20, Max: 90}, persona.Range{Min: 10, Max: 50}, 40},
	telemetry.TripLongDistance: {persona.Range{Min: 60, Max: 300}, persona.Range{Min: 50, Max: 200}, 55},
}

// Scheduler produces chronological trip profiles for a driver.
type Scheduler struct {
	area geo.Bounds
}

// New creates a scheduler that places trips inside area.
func New(area geo.Bounds) *Scheduler {
	return &Scheduler{area: area}
}

// MonthStart returns the first instant of t's calendar month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Months returns the month starts of a horizon beginning at start's month.
func Months(start time.Time, months int) []time.Time {
	if months <= 0 {
		return nil
	}
	first := MonthStart(start)
	out := make([]time.Time, months)
	for i := range out {
		out[i] = first.AddDate(0, i, 0)
	}
	return out
}

// Schedule lays out the driver's trips over months calendar months from start.
// A non-positive horizon yields no trips.
func (s *Scheduler) Schedule(rng *rand.Rand, d portfolio.Driver, start time.Time, months int) []telemetry.TripProfile {
	if months <= 0 {
		return nil
	}
	prof, ok := persona.Lookup(d.Persona.Type)
	if !ok {
		return nil
	}

	first := MonthStart(start)
	end := first.AddDate(0, months, 0)
	days := int(end.Sub(first).Hours() / 24)

	count := simrand.IntRange(rng, prof.TripsPerMonth.Min*months, prof.TripsPerMonth.Max*months)
	out := make([]telemetry.TripProfile, 0, count)
	for i := 0; i < count; i++ {
		day := first.AddDate(0, 0, rng.IntN(days))
		out = append(out, s.profile(rng, d, day))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	for i := range out {
		out[i].ID = telemetry.TripID(d.ID, i+1)
	}
	return out
}

func (s *Scheduler) profile(rng *rand.Rand, d portfolio.Driver, day time.Time) telemetry.TripProfile {
	weekend := day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
	slots := weekdaySlots
	if weekend {
		slots = weekendSlots
	}

	weights := make([]float64, len(slots))
	for i, sl := range slots {
		weights[i] = sl.weight
	}
	sl := slots[simrand.Weighted(rng, weights)]

	typ := sl.typ
	if weekend && typ == telemetry.TripLeisure && simrand.Bernoulli(rng, LongDistanceChance) {
		typ = telemetry.TripLongDistance
	}

	hour := sl.hour
	if simrand.Bernoulli(rng, d.Persona.NightDriving) {
		hour = simrand.Pick(rng, nightHours)
	}
	startAt := day.Add(time.Duration(hour)*time.Hour + time.Duration(rng.IntN(60))*time.Minute)

	tp := paramsByType[typ]
	minutes := tp.minutes.Sample(rng)
	km := tp.km.Sample(rng)

	oLat := simrand.Uniform(rng, s.area.MinLat, s.area.MaxLat)
	oLon := simrand.Uniform(rng, s.area.MinLon, s.area.MaxLon)
	bearing := simrand.Uniform(rng, 0, 360)
	dLat, dLon := geo.Destination(oLat, oLon, bearing, km*1000)
	dLat, dLon = s.area.Clamp(dLat, dLon)

	return telemetry.TripProfile{
		DriverID:       d.ID,
		Start:          startAt,
		Duration:       time.Duration(minutes * float64(time.Minute)),
		Type:           typ,
		OriginLat:      oLat,
		OriginLon:      oLon,
		DestLat:        dLat,
		DestLon:        dLon,
		TargetSpeedMPH: tp.baseSpeed * d.Persona.SpeedMultiplier,
	}
}
