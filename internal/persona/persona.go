// Package persona holds the behavioral templates drivers are sampled from.
package persona

import (
	"fmt"
	"math/rand/v2"

	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// Type is a named behavioral template.
type Type string

const (
	Safe    Type = "safe"
	Average Type = "average"
	Risky   Type = "risky"
)

// Types lists every persona in catalog order.
var Types = []Type{Safe, Average, Risky}

// Valid reports whether t is a catalog persona.
func (t Type) Valid() bool {
	switch t {
	case Safe, Average, Risky:
		return true
	}
	return false
}

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown persona %q", s)
	}
	return t, nil
}

// Range is a closed sampling interval.
type Range struct {
	Min, Max float64
}

// Sample draws uniformly from the range.
func (r Range) Sample(rng *rand.Rand) float64 {
	return simrand.Uniform(rng, r.Min, r.Max)
}

// IntRange is an inclusive integer sampling interval.
type IntRange struct {
	Min, Max int
}

// Sample draws uniformly from the range.
func (r IntRange) Sample(rng *rand.Rand) int {
	return simrand.IntRange(rng, r.Min, r.Max)
}

// Profile is the static template for one persona.
type Profile struct {
	Type Type

	// Events per 100 miles.
	HardBrakeRate   Range
	RapidAccelRate  Range
	HarshCornerRate Range
	SwervingRate    Range
	SpeedingRate    Range

	PhoneUsage      Range // fraction of drive time with the screen on
	SpeedMultiplier Range
	JerkMultiplier  Range
	NightDriving    Range // fraction of trips started at night

	BadWeatherAvoidance float64

	Age           IntRange
	VehicleAge    IntRange
	TripsPerMonth IntRange
	AccidentRate  float64 // per licensed year
	ViolationRate float64 // per licensed year
	BaseClaimRate float64
	VehicleMakes  []string
	VehicleModels []string
}

var catalog = map[Type]Profile{
	Safe: {
		Type:                Safe,
		HardBrakeRate:       Range{0.1, 0.5},
		RapidAccelRate:      Range{0.0, 0.3},
		HarshCornerRate:     Range{0.0, 0.2},
		SwervingRate:        Range{0.0, 0.1},
		SpeedingRate:        Range{0.0, 0.2},
		PhoneUsage:          Range{0.0, 0.05},
		SpeedMultiplier:     Range{0.85, 1.0},
		JerkMultiplier:      Range{0.5, 0.8},
		NightDriving:        Range{0.05, 0.15},
		BadWeatherAvoidance: 0.8,
		Age:                 IntRange{30, 65},
		VehicleAge:          IntRange{1, 8},
		TripsPerMonth:       IntRange{35, 50},
		AccidentRate:        0.05,
		ViolationRate:       0.05,
		BaseClaimRate:       0.02,
		VehicleMakes:        []string{"Toyota", "Honda", "Subaru", "Mazda", "Hyundai"},
		VehicleModels:       []string{"Camry", "Accord", "Outback", "CX-5", "Elantra"},
	},
	Average: {
		Type:                Average,
		HardBrakeRate:       Range{0.5, 2.0},
		RapidAccelRate:      Range{0.3, 1.5},
		HarshCornerRate:     Range{0.2, 1.0},
		SwervingRate:        Range{0.1, 0.5},
		SpeedingRate:        Range{0.2, 1.0},
		PhoneUsage:          Range{0.05, 0.15},
		SpeedMultiplier:     Range{0.95, 1.1},
		JerkMultiplier:      Range{0.8, 1.2},
		NightDriving:        Range{0.15, 0.25},
		BadWeatherAvoidance: 0.5,
		Age:                 IntRange{25, 55},
		VehicleAge:          IntRange{2, 12},
		TripsPerMonth:       IntRange{40, 60},
		AccidentRate:        0.15,
		ViolationRate:       0.15,
		BaseClaimRate:       0.08,
		VehicleMakes:        []string{"Ford", "Chevrolet", "Nissan", "Toyota", "Honda", "Kia"},
		VehicleModels:       []string{"F-150", "Silverado", "Altima", "Corolla", "Civic", "Forte"},
	},
	Risky: {
		Type:                Risky,
		HardBrakeRate:       Range{2.0, 8.0},
		RapidAccelRate:      Range{1.5, 6.0},
		HarshCornerRate:     Range{1.0, 4.0},
		SwervingRate:        Range{0.5, 2.0},
		SpeedingRate:        Range{1.0, 5.0},
		PhoneUsage:          Range{0.15, 0.40},
		SpeedMultiplier:     Range{1.1, 1.3},
		JerkMultiplier:      Range{1.2, 2.0},
		NightDriving:        Range{0.25, 0.45},
		BadWeatherAvoidance: 0.2,
		Age:                 IntRange{18, 35},
		VehicleAge:          IntRange{3, 15},
		TripsPerMonth:       IntRange{45, 70},
		AccidentRate:        0.35,
		ViolationRate:       0.35,
		BaseClaimRate:       0.20,
		VehicleMakes:        []string{"BMW", "Mercedes", "Audi", "Dodge", "Ford", "Chevrolet"},
		VehicleModels:       []string{"3 Series", "C-Class", "A4", "Challenger", "Mustang", "Camaro"},
	},
}

// Lookup returns the catalog profile for t.
func Lookup(t Type) (Profile, bool) {
	p, ok := catalog[t]
	return p, ok
}

// MustLookup returns the catalog profile for t and panics on an unknown persona.
func MustLookup(t Type) Profile {
	p, ok := catalog[t]
	if !ok {
		panic(fmt.Sprintf("persona: unknown type %q", t))
	}
	return p
}

// Params are one driver's sampled behavior. Immutable once sampled.
type Params struct {
	Type Type `json:"persona_type"`

	HardBrakeRate   float64 `json:"hard_brake_rate_base"`
	RapidAccelRate  float64 `json:"rapid_accel_rate_base"`
	HarshCornerRate float64 `json:"harsh_corner_rate_base"`
	SwervingRate    float64 `json:"swerving_rate_base"`
	SpeedingRate    float64 `json:"speeding_rate_base"`

	PhoneUsage      float64 `json:"phone_usage_pct"`
	SpeedMultiplier float64 `json:"avg_speed_multiplier"`
	JerkMultiplier  float64 `json:"jerk_multiplier"`
	NightDriving    float64 `json:"night_driving_pct"`

	BadWeatherAvoidance float64 `json:"bad_weather_avoidance"`
}

// Sample draws a driver's parameters from the profile. Event rates share
// a single variation factor so a driver is uniformly a bit better or worse.
func (p Profile) Sample(rng *rand.Rand) Params {
	params := Params{
		Type:                p.Type,
		HardBrakeRate:       p.HardBrakeRate.Sample(rng),
		RapidAccelRate:      p.RapidAccelRate.Sample(rng),
		HarshCornerRate:     p.HarshCornerRate.Sample(rng),
		SwervingRate:        p.SwervingRate.Sample(rng),
		SpeedingRate:        p.SpeedingRate.Sample(rng),
		PhoneUsage:          p.PhoneUsage.Sample(rng),
		SpeedMultiplier:     p.SpeedMultiplier.Sample(rng),
		JerkMultiplier:      p.JerkMultiplier.Sample(rng),
		NightDriving:        p.NightDriving.Sample(rng),
		BadWeatherAvoidance: p.BadWeatherAvoidance,
	}

	variation := simrand.Uniform(rng, 0.9, 1.1)
	params.HardBrakeRate *= variation
	params.RapidAccelRate *= variation
	params.HarshCornerRate *= variation
	params.SwervingRate *= variation
	params.SpeedingRate *= variation

	return params
}

// EventRate returns the per-100-mile rate for an event type.
func (p Params) EventRate(typ telemetry.EventType) float64 {
	switch typ {
	case telemetry.EventHardBrake:
		return p.HardBrakeRate
	case telemetry.EventRapidAccel:
		return p.RapidAccelRate
	case telemetry.EventHarshCorner:
		return p.HarshCornerRate
	case telemetry.EventSwerving:
		return p.SwervingRate
	case telemetry.EventSpeeding:
		return p.SpeedingRate
	}
	return 0
}
