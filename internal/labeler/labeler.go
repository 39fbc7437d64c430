// Package labeler manufactures the training label for a monthly record: a
// heuristic monthly claim probability and a Bernoulli draw against it.
//
// The base rate is re-derived from accident history and age because the
// persona is not visible at this stage. It is a separate signal from the
// persona-based claim probability stored on the driver.
package labeler

import (
	"math"
	"math/rand/v2"

	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/simrand"
)

const (
	// MaxMonthlyProbability caps the monthly claim probability.
	MaxMonthlyProbability = 0.25

	lowRiskAnnual    = 0.03
	mediumRiskAnnual = 0.07
	highRiskAnnual   = 0.15
	severityMu       = 8.5
	severitySigma    = 1.2
	MinClaimSeverity = 1000.0
	MaxClaimSeverity = 100000.0
)

// Result is the labeling outcome for one record.
type Result struct {
	Probability float64
	Claimed     bool
	Severity    float64 // zero unless Claimed
}

// AnnualBase returns the heuristic annual claim rate.
func AnnualBase(rec *features.Record) float64 {
	switch {
	case rec.PriorAtFaultAccidents == 0 && rec.DriverAge > 30:
		return lowRiskAnnual
	case rec.PriorAtFaultAccidents > 1 || rec.DriverAge < 25:
		return highRiskAnnual
	default:
		return mediumRiskAnnual
	}
}

// Probability returns the capped monthly claim probability for rec.
func Probability(rec *features.Record) float64 {
	p := AnnualBase(rec) / 12

	m := (1 + rec.HardBrakeRatePer100Miles*0.3) *
		(1 + rec.RapidAccelRatePer100Miles*0.2) *
		(1 + rec.SpeedingRatePer100Miles*0.4) *
		(1 + rec.PctTripTimeScreenOn/100*0.5)

	switch {
	case rec.DriverAge < 25:
		m *= 1.8
	case rec.DriverAge > 65:
		m *= 1.3
	}
	if rec.VehicleAge > 15 {
		m *= 1.2
	}
	m *= 1 + 0.5*float64(rec.PriorAtFaultAccidents)
	m *= 1 + rec.PctMilesNight/100*0.3

	p *= m
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return math.Min(p, MaxMonthlyProbability)
}

// Label draws the claim outcome for rec.
func Label(rng *rand.Rand, rec *features.Record) Result {
	p := Probability(rec)
	res := Result{Probability: p, Claimed: simrand.Bernoulli(rng, p)}
	if res.Claimed {
		res.Severity = simrand.Clamp(simrand.LogNormal(rng, severityMu, severitySigma), MinClaimSeverity, MaxClaimSeverity)
	}
	return res
}

// Apply labels rec in place.
func Apply(rng *rand.Rand, rec *features.Record) Result {
	res := Label(rng, rec)
	rec.ClaimProbability = res.Probability
	rec.HadClaimInPeriod = res.Claimed
	rec.ClaimSeverity = res.Severity
	return res
}
