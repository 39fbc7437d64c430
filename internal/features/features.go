// Package features defines the monthly risk-feature record: one row per
// driver-month with 32 fixed feature columns and the training label.
package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mbd888/drivesim/internal/telemetry"
)

// MonthLayout is the month key format.
const MonthLayout = "2006-01"

// ErrInvalidRecord marks a record that violates a range invariant.
var ErrInvalidRecord = errors.New("invalid feature record")

// Record is one driver-month. Field order matches Columns.
type Record struct {
	DriverID string `json:"driver_id"`
	Month    string `json:"month"`

	TotalTrips                 int     `json:"total_trips"`
	TotalDriveTimeHours        float64 `json:"total_drive_time_hours"`
	TotalMilesDriven           float64 `json:"total_miles_driven"`
	AvgSpeedMPH                float64 `json:"avg_speed_mph"`
	MaxSpeedMPH                float64 `json:"max_speed_mph"`
	AvgJerkRate                float64 `json:"avg_jerk_rate"`
	HardBrakeRatePer100Miles   float64 `json:"hard_brake_rate_per_100_miles"`
	RapidAccelRatePer100Miles  float64 `json:"rapid_accel_rate_per_100_miles"`
	HarshCorneringRatePer100Mi float64 `json:"harsh_cornering_rate_per_100_miles"`
	SwervingEventsPer100Miles  float64 `json:"swerving_events_per_100_miles"`
	PctMilesNight              float64 `json:"pct_miles_night"`
	PctMilesLateNightWeekend   float64 `json:"pct_miles_late_night_weekend"`
	PctMilesWeekdayRushHour    float64 `json:"pct_miles_weekday_rush_hour"`

	PctTripTimeScreenOn       float64              `json:"pct_trip_time_screen_on"`
	HandheldEventsRatePerHour float64              `json:"handheld_events_rate_per_hour"`
	PctTripTimeOnCallHandheld float64              `json:"pct_trip_time_on_call_handheld"`
	AvgEngineRPM              float64              `json:"avg_engine_rpm"`
	HasDTCCodes               bool                 `json:"has_dtc_codes"`
	AirbagDeploymentFlag      bool                 `json:"airbag_deployment_flag"`
	DriverAge                 int                  `json:"driver_age"`
	VehicleAge                int                  `json:"vehicle_age"`
	PriorAtFaultAccidents     int                  `json:"prior_at_fault_accidents"`
	YearsLicensed             int                  `json:"years_licensed"`
	DataSource                telemetry.DataSource `json:"data_source"`
	GPSAccuracyAvgMeters      float64              `json:"gps_accuracy_avg_meters"`
	DriverPassengerConfidence float64              `json:"driver_passenger_confidence_score"`

	SpeedingRatePer100Miles float64 `json:"speeding_rate_per_100_miles"`
	MaxSpeedOverLimitMPH    float64 `json:"max_speed_over_limit_mph"`
	PctMilesHighway         float64 `json:"pct_miles_highway"`
	PctMilesUrban           float64 `json:"pct_miles_urban"`
	PctMilesInRainOrSnow    float64 `json:"pct_miles_in_rain_or_snow"`
	PctMilesInHeavyTraffic  float64 `json:"pct_miles_in_heavy_traffic"`

	HadClaimInPeriod bool `json:"had_claim_in_period"`

	// Audit fields; not part of the feature table.
	ClaimProbability float64 `json:"claim_probability"`
	ClaimSeverity    float64 `json:"claim_severity,omitempty"`
}

// Key identifies a record.
type Key struct {
	DriverID string
	Month    string
}

// Key returns the record's (driver, month) key.
func (r *Record) Key() Key { return Key{DriverID: r.DriverID, Month: r.Month} }

// FeatureColumns are the 32 model features in order.
var FeatureColumns = []string{
	"total_trips", "total_drive_time_hours", "total_miles_driven",
	"avg_speed_mph", "max_speed_mph", "avg_jerk_rate",
	"hard_brake_rate_per_100_miles", "rapid_accel_rate_per_100_miles",
	"harsh_cornering_rate_per_100_miles", "swerving_events_per_100_miles",
	"pct_miles_night", "pct_miles_late_night_weekend", "pct_miles_weekday_rush_hour",
	"pct_trip_time_screen_on", "handheld_events_rate_per_hour",
	"pct_trip_time_on_call_handheld", "avg_engine_rpm", "has_dtc_codes",
	"airbag_deployment_flag", "driver_age", "vehicle_age",
	"prior_at_fault_accidents", "years_licensed", "data_source",
	"gps_accuracy_avg_meters", "driver_passenger_confidence_score",
	"speeding_rate_per_100_miles", "max_speed_over_limit_mph",
	"pct_miles_highway", "pct_miles_urban", "pct_miles_in_rain_or_snow",
	"pct_miles_in_heavy_traffic",
}

// Columns is the full output table header.
var Columns = append(append([]string{"driver_id", "month"}, FeatureColumns...), "had_claim_in_period")

// MonthKey formats t as a month key.
func MonthKey(t time.Time) string { return t.UTC().Format(MonthLayout) }

func (r *Record) percentages() map[string]float64 {
	return map[string]float64{
		"pct_miles_night":                r.PctMilesNight,
		"pct_miles_late_night_weekend":   r.PctMilesLateNightWeekend,
		"pct_miles_weekday_rush_hour":    r.PctMilesWeekdayRushHour,
		"pct_trip_time_screen_on":        r.PctTripTimeScreenOn,
		"pct_trip_time_on_call_handheld": r.PctTripTimeOnCallHandheld,
		"pct_miles_highway":              r.PctMilesHighway,
		"pct_miles_urban":                r.PctMilesUrban,
		"pct_miles_in_rain_or_snow":      r.PctMilesInRainOrSnow,
		"pct_miles_in_heavy_traffic":     r.PctMilesInHeavyTraffic,
	}
}

func (r *Record) nonNegatives() map[string]float64 {
	return map[string]float64{
		"total_drive_time_hours":             r.TotalDriveTimeHours,
		"total_miles_driven":                 r.TotalMilesDriven,
		"avg_speed_mph":                      r.AvgSpeedMPH,
		"max_speed_mph":                      r.MaxSpeedMPH,
		"avg_jerk_rate":                      r.AvgJerkRate,
		"hard_brake_rate_per_100_miles":      r.HardBrakeRatePer100Miles,
		"rapid_accel_rate_per_100_miles":     r.RapidAccelRatePer100Miles,
		"harsh_cornering_rate_per_100_miles": r.HarshCorneringRatePer100Mi,
		"swerving_events_per_100_miles":      r.SwervingEventsPer100Miles,
		"speeding_rate_per_100_miles":        r.SpeedingRatePer100Miles,
		"handheld_events_rate_per_hour":      r.HandheldEventsRatePerHour,
		"max_speed_over_limit_mph":           r.MaxSpeedOverLimitMPH,
		"avg_engine_rpm":                     r.AvgEngineRPM,
		"gps_accuracy_avg_meters":            r.GPSAccuracyAvgMeters,
	}
}

// Validate checks the range invariants of a record.
func (r *Record) Validate() error {
	var errs []error
	if r.DriverID == "" {
		errs = append(errs, fmt.Errorf("%w: empty driver_id", ErrInvalidRecord))
	}
	if _, err := time.Parse(MonthLayout, r.Month); err != nil {
		errs = append(errs, fmt.Errorf("%w: month %q", ErrInvalidRecord, r.Month))
	}
	if r.TotalTrips < 0 {
		errs = append(errs, fmt.Errorf("%w: total_trips %d", ErrInvalidRecord, r.TotalTrips))
	}
	for name, v := range r.percentages() {
		if math.IsNaN(v) || v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%w: %s=%v outside [0,100]", ErrInvalidRecord, name, v))
		}
	}
	for name, v := range r.nonNegatives() {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			errs = append(errs, fmt.Errorf("%w: %s=%v not a finite non-negative number", ErrInvalidRecord, name, v))
		}
	}
	if c := r.DriverPassengerConfidence; math.IsNaN(c) || c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("%w: driver_passenger_confidence_score=%v outside [0,1]", ErrInvalidRecord, c))
	}
	if p := r.ClaimProbability; math.IsNaN(p) || p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("%w: claim_probability=%v outside [0,1]", ErrInvalidRecord, p))
	}
	if !r.DataSource.Valid() {
		errs = append(errs, fmt.Errorf("%w: data_source %q", ErrInvalidRecord, r.DataSource))
	}
	return errors.Join(errs...)
}

// CheckUnique returns an error naming the first duplicated key.
func CheckUnique(recs []Record) error {
	seen := make(map[Key]struct{}, len(recs))
	for i := range recs {
		k := recs[i].Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate key %s/%s", ErrInvalidRecord, k.DriverID, k.Month)
		}
		seen[k] = struct{}{}
	}
	return nil
}
