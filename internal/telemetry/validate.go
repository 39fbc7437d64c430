package telemetry

import (
	"errors"
	"fmt"
	"math"
)

// Sensor plausibility limits.
const (
	MaxSpeedMPH     = 200.0
	MaxAccuracyM    = 1000.0
	MaxAccelG       = 20.0
	MaxGyroDegPerS  = 2000.0
	MinGPSPoints    = 10
	MinIMUReadings  = 20
	MaxSimSpeedMPH  = 80.0
	MaxTripDistance = 500.0
)

// ValidateGPSPoint checks a fix against sensor plausibility limits.
func ValidateGPSPoint(p GPSPoint) error {
	var errs []error
	if p.Lat < -90 || p.Lat > 90 || math.IsNaN(p.Lat) {
		errs = append(errs, fmt.Errorf("latitude %v out of range", p.Lat))
	}
	if p.Lon < -180 || p.Lon > 180 || math.IsNaN(p.Lon) {
		errs = append(errs, fmt.Errorf("longitude %v out of range", p.Lon))
	}
	if p.SpeedMPH < 0 || p.SpeedMPH > MaxSpeedMPH || math.IsNaN(p.SpeedMPH) {
		errs = append(errs, fmt.Errorf("speed %v mph out of range", p.SpeedMPH))
	}
	if p.AccuracyM < 0 || p.AccuracyM > MaxAccuracyM {
		errs = append(errs, fmt.Errorf("accuracy %v m out of range", p.AccuracyM))
	}
	return errors.Join(errs...)
}

// ValidateIMUReading checks a reading against sensor plausibility limits.
func ValidateIMUReading(r IMUReading) error {
	var errs []error
	for _, a := range []float64{r.AccelX, r.AccelY, r.AccelZ} {
		if math.Abs(a) > MaxAccelG || math.IsNaN(a) {
			errs = append(errs, fmt.Errorf("acceleration %v g out of range", a))
		}
	}
	for _, g := range []float64{r.GyroX, r.GyroY, r.GyroZ} {
		if math.Abs(g) > MaxGyroDegPerS || math.IsNaN(g) {
			errs = append(errs, fmt.Errorf("angular rate %v deg/s out of range", g))
		}
	}
	return errors.Join(errs...)
}

// Validate checks trip-level consistency: time bounds, sequence minimums,
// per-sample plausibility and that samples fall inside the trip window.
func (t *Trip) Validate() error {
	var errs []error
	if !t.End.After(t.Start) {
		errs = append(errs, fmt.Errorf("end %s not after start %s", t.End, t.Start))
	}
	if len(t.GPS) < MinGPSPoints {
		errs = append(errs, fmt.Errorf("%d gps points, need %d", len(t.GPS), MinGPSPoints))
	}
	if len(t.IMU) < MinIMUReadings {
		errs = append(errs, fmt.Errorf("%d imu readings, need %d", len(t.IMU), MinIMUReadings))
	}
	if t.DistanceMiles < 0 || math.IsNaN(t.DistanceMiles) || t.DistanceMiles > MaxTripDistance {
		errs = append(errs, fmt.Errorf("distance %v miles out of range", t.DistanceMiles))
	}
	if t.AvgSpeedMPH < 0 || t.AvgSpeedMPH > MaxSpeedMPH || math.IsNaN(t.AvgSpeedMPH) {
		errs = append(errs, fmt.Errorf("average speed %v mph out of range", t.AvgSpeedMPH))
	}
	if t.Quality.CompletenessPct < 0 || t.Quality.CompletenessPct > 100 {
		errs = append(errs, fmt.Errorf("completeness %v%% out of range", t.Quality.CompletenessPct))
	}
	for i, p := range t.GPS {
		if err := ValidateGPSPoint(p); err != nil {
			errs = append(errs, fmt.Errorf("gps[%d]: %w", i, err))
			break
		}
		if p.Timestamp.Before(t.Start) || p.Timestamp.After(t.End) {
			errs = append(errs, fmt.Errorf("gps[%d] outside trip window", i))
			break
		}
	}
	for i, r := range t.IMU {
		if err := ValidateIMUReading(r); err != nil {
			errs = append(errs, fmt.Errorf("imu[%d]: %w", i, err))
			break
		}
		if r.Timestamp.Before(t.Start) || r.Timestamp.After(t.End) {
			errs = append(errs, fmt.Errorf("imu[%d] outside trip window", i))
			break
		}
	}
	return errors.Join(errs...)
}
