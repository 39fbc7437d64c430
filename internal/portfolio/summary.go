package portfolio

import (
	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// Summary describes a generated portfolio.
type Summary struct {
	Total                int                          `json:"total"`
	ByPersona            map[persona.Type]int         `json:"by_persona"`
	BySource             map[telemetry.DataSource]int `json:"by_source"`
	MeanAge              float64                      `json:"mean_age"`
	MeanClaimProbability float64                      `json:"mean_claim_probability"`
	WithPriorAccidents   int                          `json:"with_prior_accidents"`
}

// Summarize counts drivers by persona and data source.
func Summarize(drivers []Driver) Summary {
	s := Summary{
		Total:     len(drivers),
		ByPersona: make(map[persona.Type]int),
		BySource:  make(map[telemetry.DataSource]int),
	}
	if len(drivers) == 0 {
		return s
	}

	var ageSum, probSum float64
	for _, d := range drivers {
		s.ByPersona[d.Persona.Type]++
		s.BySource[d.DataSource]++
		ageSum += float64(d.Age)
		probSum += d.ClaimProbability
		if d.PriorAccidents > 0 {
			s.WithPriorAccidents++
		}
	}
	s.MeanAge = ageSum / float64(len(drivers))
	s.MeanClaimProbability = probSum / float64(len(drivers))
	return s
}
