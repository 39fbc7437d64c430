// Package aggregate reduces a driver's chronological trip stream into one
// feature record per calendar month of the horizon.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/portfolio"
	"github.com/mbd888/drivesim/internal/schedule"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

var (
	ErrOutOfOrder     = errors.New("trip out of chronological order")
	ErrWrongDriver    = errors.New("trip belongs to another driver")
	ErrOutsideHorizon = errors.New("trip outside the horizon")
	ErrDuplicateKey   = errors.New("duplicate driver-month key")
	ErrClosed         = errors.New("aggregator closed")
)

// AggregationError marks a driver-month that could not be aggregated. The
// month (when known) is skipped; the rest of the run continues.
type AggregationError struct {
	DriverID string
	Month    string
	TripID   string
	Err      error
}

func (e *AggregationError) Error() string {
	if e.TripID != "" {
		return fmt.Sprintf("aggregate %s/%s trip %s: %v", e.DriverID, e.Month, e.TripID, e.Err)
	}
	return fmt.Sprintf("aggregate %s/%s: %v", e.DriverID, e.Month, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// Defaults for months without trip data and for phone-only vehicle fields.
const (
	DefaultGPSAccuracyM = 5.0
	DefaultConfidence   = 0.9
	PhoneOnlyEngineRPM  = 2100.0
	DeviceRPMMin        = 1800.0
	DeviceRPMMax        = 2500.0
	DeviceDTCChance     = 0.05
	DeviceAirbagChance  = 0.001
	minMiles            = 0.01
)

// Aggregator is a per-driver streaming reducer. Not safe for concurrent use.
type Aggregator struct {
	driver portfolio.Driver
	months []time.Time
	end    time.Time
	rng    *rand.Rand

	cur     int
	acc     accumulator
	last    time.Time
	skip    map[int]bool
	emitted map[features.Key]bool
	skipped int
	closed  bool
}

// New creates an aggregator over months calendar months starting at start's month.
// rng drives the vehicle-system draws for device-equipped drivers.
func New(d portfolio.Driver, start time.Time, months int, rng *rand.Rand) *Aggregator {
	ms := schedule.Months(start.UTC(), months)
	a := &Aggregator{
		driver:  d,
		months:  ms,
		rng:     rng,
		skip:    make(map[int]bool),
		emitted: make(map[features.Key]bool),
	}
	if len(ms) > 0 {
		a.end = ms[len(ms)-1].AddDate(0, 1, 0)
	}
	return a
}

// Skipped returns the number of driver-months dropped because of errors.
func (a *Aggregator) Skipped() int { return a.skipped }

func (a *Aggregator) monthIndex(t time.Time) int {
	t = t.UTC()
	if len(a.months) == 0 || t.Before(a.months[0]) || !t.Before(a.end) {
		return -1
	}
	first := a.months[0]
	return (t.Year()-first.Year())*12 + int(t.Month()-first.Month())
}

func (a *Aggregator) fail(idx int, trip *telemetry.Trip, err error) *AggregationError {
	month := ""
	if idx >= 0 {
		month = features.MonthKey(a.months[idx])
		a.skip[idx] = true
	}
	return &AggregationError{DriverID: a.driver.ID, Month: month, TripID: trip.ID, Err: err}
}

// Add folds trip into its month. Months before the trip's month are finalized
// and returned, including months without trips.
func (a *Aggregator) Add(trip *telemetry.Trip) ([]features.Record, error) {
	if a.closed {
		return nil, &AggregationError{DriverID: a.driver.ID, TripID: trip.ID, Err: ErrClosed}
	}
	idx := a.monthIndex(trip.Start)
	switch {
	case idx < 0:
		return nil, a.fail(-1, trip, ErrOutsideHorizon)
	case trip.DriverID != a.driver.ID:
		return nil, a.fail(idx, trip, ErrWrongDriver)
	case idx < a.cur:
		return nil, &AggregationError{DriverID: a.driver.ID, Month: features.MonthKey(a.months[idx]), TripID: trip.ID, Err: ErrOutOfOrder}
	case idx == a.cur && trip.Start.Before(a.last):
		return nil, a.fail(idx, trip, ErrOutOfOrder)
	}

	var out []features.Record
	var errs []error
	for a.cur < idx {
		if rec, err := a.finalize(); err != nil {
			errs = append(errs, err)
		} else if rec != nil {
			out = append(out, *rec)
		}
	}
	a.acc.add(trip)
	a.last = trip.Start
	return out, errors.Join(errs...)
}

// Close finalizes the current month and every remaining month of the horizon.
func (a *Aggregator) Close() ([]features.Record, error) {
	if a.closed {
		return nil, &AggregationError{DriverID: a.driver.ID, Err: ErrClosed}
	}
	var out []features.Record
	var errs []error
	for a.cur < len(a.months) {
		if rec, err := a.finalize(); err != nil {
			errs = append(errs, err)
		} else if rec != nil {
			out = append(out, *rec)
		}
	}
	a.closed = true
	return out, errors.Join(errs...)
}

// finalize emits the current month and advances. A nil record means the
// month was skipped.
func (a *Aggregator) finalize() (*features.Record, error) {
	idx := a.cur
	acc := a.acc
	a.cur++
	a.acc = accumulator{}
	a.last = time.Time{}

	if a.skip[idx] {
		a.skipped++
		return nil, nil
	}
	rec := a.build(a.months[idx], &acc)
	if a.emitted[rec.Key()] {
		a.skipped++
		return nil, &AggregationError{DriverID: rec.DriverID, Month: rec.Month, Err: ErrDuplicateKey}
	}
	a.emitted[rec.Key()] = true
	return &rec, nil
}

func pct(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return simrand.Clamp(100*part/whole, 0, 100)
}

func per100(count int, miles float64) float64 {
	if miles <= 0 || count == 0 {
		return 0
	}
	return float64(count) / (math.Max(miles, minMiles) / 100)
}

func (a *Aggregator) build(month time.Time, acc *accumulator) features.Record {
	d := a.driver
	rec := features.Record{
		DriverID:                  d.ID,
		Month:                     features.MonthKey(month),
		DriverAge:                 d.Age,
		VehicleAge:                d.VehicleAge,
		PriorAtFaultAccidents:     d.PriorAccidents,
		YearsLicensed:             d.YearsLicensed,
		DataSource:                d.DataSource,
		AvgEngineRPM:              PhoneOnlyEngineRPM,
		GPSAccuracyAvgMeters:      DefaultGPSAccuracyM,
		DriverPassengerConfidence: DefaultConfidence,
	}
	if acc.trips == 0 {
		return rec
	}

	hours := acc.seconds / 3600
	rec.TotalTrips = acc.trips
	rec.TotalDriveTimeHours = hours
	rec.TotalMilesDriven = acc.miles
	if acc.speedN > 0 {
		rec.AvgSpeedMPH = acc.speedSum / float64(acc.speedN)
	}
	rec.MaxSpeedMPH = acc.maxSpeed
	rec.AvgJerkRate = acc.jerkSum / float64(acc.trips)

	rec.HardBrakeRatePer100Miles = per100(acc.events[telemetry.EventHardBrake], acc.miles)
	rec.RapidAccelRatePer100Miles = per100(acc.events[telemetry.EventRapidAccel], acc.miles)
	rec.HarshCorneringRatePer100Mi = per100(acc.events[telemetry.EventHarshCorner], acc.miles)
	rec.SwervingEventsPer100Miles = per100(acc.events[telemetry.EventSwerving], acc.miles)
	rec.SpeedingRatePer100Miles = per100(acc.events[telemetry.EventSpeeding], acc.miles)

	rec.PctMilesNight = pct(acc.nightMiles, acc.miles)
	rec.PctMilesLateNightWeekend = pct(acc.lateWeekendMiles, acc.miles)
	rec.PctMilesWeekdayRushHour = pct(acc.rushMiles, acc.miles)

	rec.PctTripTimeScreenOn = pct(acc.screenSeconds, acc.seconds)
	rec.PctTripTimeOnCallHandheld = pct(acc.callSeconds, acc.seconds)
	if hours > 0 {
		rec.HandheldEventsRatePerHour = float64(acc.handheldEvents) / hours
	}

	rec.MaxSpeedOverLimitMPH = acc.maxOverLimit
	rec.PctMilesHighway = pct(acc.highwayMiles, acc.miles)
	rec.PctMilesUrban = pct(acc.urbanMiles, acc.miles)
	rec.PctMilesInRainOrSnow = pct(acc.precipMiles, acc.miles)
	rec.PctMilesInHeavyTraffic = pct(acc.heavyMiles, acc.miles)

	rec.GPSAccuracyAvgMeters = acc.accuracySum / float64(acc.trips)
	rec.DriverPassengerConfidence = simrand.Clamp(acc.confidenceSum/float64(acc.trips), 0, 1)

	if d.DataSource == telemetry.SourcePhonePlusDevice {
		rec.AvgEngineRPM = simrand.Uniform(a.rng, DeviceRPMMin, DeviceRPMMax)
		rec.HasDTCCodes = simrand.Bernoulli(a.rng, DeviceDTCChance)
		rec.AirbagDeploymentFlag = simrand.Bernoulli(a.rng, DeviceAirbagChance)
	}
	return rec
}
