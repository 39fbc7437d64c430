package portfolio

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/simrand"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// Generator instantiates driver populations from the persona catalog.
type Generator struct {
	reference time.Time
}

// NewGenerator creates a generator. Account and policy dates are placed before reference.
func NewGenerator(reference time.Time) *Generator {
	return &Generator{reference: reference}
}

// Generate creates n drivers with personas drawn from mix. A malformed mix or a
// negative count is a ValidationError; generation itself cannot fail.
func (g *Generator) Generate(ctx context.Context, rng *rand.Rand, n int, mix Mix) ([]Driver, error) {
	if err := mix.Validate(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &ValidationError{Field: "driver_count", Reason: fmt.Sprintf("%d is negative", n)}
	}

	weights := mix.Weights()
	drivers := make([]Driver, 0, n)
	for i := 1; i <= n; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		typ := persona.Types[simrand.Weighted(rng, weights)]
		drivers = append(drivers, g.newDriver(rng, DriverID(i), persona.MustLookup(typ)))
	}
	return drivers, nil
}

func (g *Generator) newDriver(rng *rand.Rand, id string, prof persona.Profile) Driver {
	d := Driver{
		ID:      id,
		Persona: prof.Sample(rng),
	}

	d.Age = prof.Age.Sample(rng)
	d.YearsLicensed = simrand.IntRange(rng, 1, min(max(1, d.Age-17), d.Age-16))
	d.VehicleAge = prof.VehicleAge.Sample(rng)

	d.VehicleMake = simrand.Pick(rng, prof.VehicleMakes)
	d.VehicleModel = simrand.Pick(rng, prof.VehicleModels)

	d.PriorAccidents = decayingCount(rng, d.YearsLicensed, prof.AccidentRate, 0.8)
	d.PriorViolations = decayingCount(rng, d.YearsLicensed, prof.ViolationRate, 0.9)
	d.PriorClaims = max(0, d.PriorAccidents+simrand.IntRange(rng, -1, 2))

	if simrand.Bernoulli(rng, 0.5) {
		d.DataSource = telemetry.SourcePhoneOnly
	} else {
		d.DataSource = telemetry.SourcePhonePlusDevice
	}

	d.AccountCreated = g.daysBefore(rng, 30, 730)
	d.PolicyStart = g.daysBefore(rng, 30, 550)

	d.ClaimProbability = ClaimProbability(d)
	return d
}

// decayingCount draws one Bernoulli per year; the rate shrinks after each hit.
func decayingCount(rng *rand.Rand, years int, rate, decay float64) int {
	n := 0
	for y := 0; y < years; y++ {
		if simrand.Bernoulli(rng, rate) {
			n++
			rate *= decay
		}
	}
	return n
}

func (g *Generator) daysBefore(rng *rand.Rand, lo, hi int) time.Time {
	days := simrand.IntRange(rng, lo, hi)
	return g.reference.AddDate(0, 0, -days).Truncate(24 * time.Hour)
}

// Persona-level claim probability inputs.
const (
	MaxClaimProbability = 0.5
	youngDriverAge      = 25
	seniorDriverAge     = 55
)

// ClaimProbability is the driver's ground-truth claim likelihood derived from the
// persona identity and demographics. It is independent of the monthly labeler,
// which cannot see the persona.
func ClaimProbability(d Driver) float64 {
	prof, ok := persona.Lookup(d.Persona.Type)
	if !ok {
		return 0
	}
	p := d.Persona

	behavior := 1 +
		p.HardBrakeRate/100*0.05 +
		p.SpeedingRate/100*0.03 +
		p.PhoneUsage*0.15 +
		math.Max(0, p.SpeedMultiplier-1)*0.10

	prob := prof.BaseClaimRate * behavior

	switch {
	case d.Age < youngDriverAge:
		prob *= 1.3
	case d.Age > seniorDriverAge:
		prob *= 0.8
	}
	if d.PriorAccidents > 0 {
		prob *= 1 + 0.2*float64(d.PriorAccidents)
	}

	return math.Min(prob, MaxClaimProbability)
}
