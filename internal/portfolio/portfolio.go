// Package portfolio generates and validates the driver population a simulation runs over.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// ErrInvalidMix is wrapped by ValidationErrors raised for a malformed persona mix.
var ErrInvalidMix = errors.New("invalid persona mix")

// ValidationError is a fatal problem with portfolio input. It aborts the run.
type ValidationError struct {
	DriverID string // empty for portfolio-level problems
	Field    string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.DriverID != "" {
		return fmt.Sprintf("portfolio validation: driver %s: %s: %s", e.DriverID, e.Field, e.Reason)
	}
	return fmt.Sprintf("portfolio validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Driver is one policyholder. Read-only once generated.
type Driver struct {
	ID      string         `json:"driver_id"`
	Persona persona.Params `json:"persona"`

	Age           int `json:"driver_age"`
	YearsLicensed int `json:"years_licensed"`

	VehicleAge   int    `json:"vehicle_age"`
	VehicleMake  string `json:"vehicle_make"`
	VehicleModel string `json:"vehicle_model"`

	PriorAccidents  int `json:"prior_at_fault_accidents"`
	PriorViolations int `json:"prior_violations"`
	PriorClaims     int `json:"prior_claims"`

	DataSource       telemetry.DataSource `json:"data_source"`
	ClaimProbability float64              `json:"claim_probability"`

	AccountCreated time.Time `json:"account_created"`
	PolicyStart    time.Time `json:"policy_start"`
}

// DriverID formats the ID of the n-th generated driver (1-based).
func DriverID(n int) string {
	return fmt.Sprintf("driver_%06d", n)
}

// Mix is the persona distribution of a portfolio.
type Mix struct {
	Safe    float64 `yaml:"safe" json:"safe"`
	Average float64 `yaml:"average" json:"average"`
	Risky   float64 `yaml:"risky" json:"risky"`
}

// DefaultMix is 60% safe, 30% average, 10% risky.
var DefaultMix = Mix{Safe: 0.6, Average: 0.3, Risky: 0.1}

// MixTolerance is how far the mix may sum away from 1.
const MixTolerance = 0.001

// Weights returns the mix in persona.Types order.
func (m Mix) Weights() []float64 {
	return []float64{m.Safe, m.Average, m.Risky}
}

// Validate checks that weights are non-negative and sum to 1.
func (m Mix) Validate() error {
	var sum float64
	for i, w := range m.Weights() {
		if w < 0 || math.IsNaN(w) {
			return &ValidationError{
				Field:  "persona_mix",
				Reason: fmt.Sprintf("%s weight %v is negative", persona.Types[i], w),
				Err:    ErrInvalidMix,
			}
		}
		sum += w
	}
	if math.Abs(sum-1) > MixTolerance {
		return &ValidationError{
			Field:  "persona_mix",
			Reason: fmt.Sprintf("weights sum to %.4f, want 1.0", sum),
			Err:    ErrInvalidMix,
		}
	}
	return nil
}

// ParseMix parses "safe,average,risky" weights, e.g. "0.6,0.3,0.1".
func ParseMix(s string) (Mix, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Mix{}, &ValidationError{
			Field:  "persona_mix",
			Reason: fmt.Sprintf("want 3 comma-separated weights, got %d", len(parts)),
			Err:    ErrInvalidMix,
		}
	}
	var w [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Mix{}, &ValidationError{
				Field:  "persona_mix",
				Reason: fmt.Sprintf("weight %q is not a number", p),
				Err:    ErrInvalidMix,
			}
		}
		w[i] = v
	}
	m := Mix{Safe: w[0], Average: w[1], Risky: w[2]}
	return m, m.Validate()
}

// Validate checks every driver against demographic bounds and rejects duplicate IDs.
func Validate(drivers []Driver) error {
	seen := make(map[string]struct{}, len(drivers))
	for _, d := range drivers {
		if d.ID == "" {
			return &ValidationError{Field: "driver_id", Reason: "empty"}
		}
		if _, dup := seen[d.ID]; dup {
			return &ValidationError{DriverID: d.ID, Field: "driver_id", Reason: "duplicate"}
		}
		seen[d.ID] = struct{}{}

		switch {
		case !d.Persona.Type.Valid():
			return &ValidationError{DriverID: d.ID, Field: "persona_type", Reason: fmt.Sprintf("unknown persona %q", d.Persona.Type)}
		case d.Age < 16 || d.Age > 100:
			return &ValidationError{DriverID: d.ID, Field: "driver_age", Reason: fmt.Sprintf("%d outside 16-100", d.Age)}
		case d.YearsLicensed < 0 || d.YearsLicensed > d.Age-15:
			return &ValidationError{DriverID: d.ID, Field: "years_licensed", Reason: fmt.Sprintf("%d inconsistent with age %d", d.YearsLicensed, d.Age)}
		case d.VehicleAge < 0 || d.VehicleAge > 30:
			return &ValidationError{DriverID: d.ID, Field: "vehicle_age", Reason: fmt.Sprintf("%d outside 0-30", d.VehicleAge)}
		case d.PriorAccidents < 0:
			return &ValidationError{DriverID: d.ID, Field: "prior_at_fault_accidents", Reason: "negative"}
		case !d.DataSource.Valid():
			return &ValidationError{DriverID: d.ID, Field: "data_source", Reason: fmt.Sprintf("unknown source %q", d.DataSource)}
		case !(d.ClaimProbability >= 0 && d.ClaimProbability <= 1):
			return &ValidationError{DriverID: d.ID, Field: "claim_probability", Reason: fmt.Sprintf("%g outside 0-1", d.ClaimProbability)}
		}
		if err := validateParams(d); err != nil {
			return err
		}
	}
	return nil
}

// validateParams rejects persona parameters that are negative or not finite.
// A NaN rate would otherwise turn every IMU sample into an event.
func validateParams(d Driver) error {
	p := d.Persona
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"hard_brake_rate_base", p.HardBrakeRate},
		{"rapid_accel_rate_base", p.RapidAccelRate},
		{"harsh_corner_rate_base", p.HarshCornerRate},
		{"swerving_rate_base", p.SwervingRate},
		{"speeding_rate_base", p.SpeedingRate},
		{"phone_usage_pct", p.PhoneUsage},
		{"avg_speed_multiplier", p.SpeedMultiplier},
		{"jerk_multiplier", p.JerkMultiplier},
		{"night_driving_pct", p.NightDriving},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ValidationError{DriverID: d.ID, Field: f.name, Reason: "not finite"}
		}
		if f.v < 0 {
			return &ValidationError{DriverID: d.ID, Field: f.name, Reason: "negative"}
		}
	}
	return nil
}
