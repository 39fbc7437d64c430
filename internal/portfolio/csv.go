package portfolio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mbd888/drivesim/internal/persona"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// Columns is the portfolio table layout written by WriteCSV.
var Columns = []string{
	"driver_id", "persona_type", "driver_age", "years_licensed",
	"vehicle_age", "vehicle_make", "vehicle_model",
	"prior_at_fault_accidents", "prior_violations", "prior_claims",
	"data_source", "claim_probability",
	"hard_brake_rate_base", "rapid_accel_rate_base", "harsh_corner_rate_base",
	"swerving_rate_base", "speeding_rate_base",
	"phone_usage_pct", "avg_speed_multiplier", "jerk_multiplier", "night_driving_pct",
}

var requiredColumns = []string{
	"driver_id", "persona_type", "driver_age", "years_licensed",
	"vehicle_age", "prior_at_fault_accidents", "data_source",
}

// WriteCSV writes drivers in Columns order.
func WriteCSV(w io.Writer, drivers []Driver) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, d := range drivers {
		p := d.Persona
		row := []string{
			d.ID, string(p.Type), strconv.Itoa(d.Age), strconv.Itoa(d.YearsLicensed),
			strconv.Itoa(d.VehicleAge), d.VehicleMake, d.VehicleModel,
			strconv.Itoa(d.PriorAccidents), strconv.Itoa(d.PriorViolations), strconv.Itoa(d.PriorClaims),
			string(d.DataSource), ftoa(d.ClaimProbability),
			ftoa(p.HardBrakeRate), ftoa(p.RapidAccelRate), ftoa(p.HarshCornerRate),
			ftoa(p.SwervingRate), ftoa(p.SpeedingRate),
			ftoa(p.PhoneUsage), ftoa(p.SpeedMultiplier), ftoa(p.JerkMultiplier), ftoa(p.NightDriving),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write driver %s: %w", d.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// ReadCSV parses a portfolio table. Persona parameter columns are optional;
// missing ones take the midpoint of the persona's catalog range. Any malformed
// row is a ValidationError, and the parsed portfolio is passed through Validate.
func ReadCSV(r io.Reader) ([]Driver, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &ValidationError{Field: "csv", Reason: err.Error(), Err: err}
	}
	if len(records) < 1 {
		return nil, &ValidationError{Field: "csv", Reason: "missing header row"}
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, k := range requiredColumns {
		if _, ok := col[k]; !ok {
			return nil, &ValidationError{Field: k, Reason: "missing required column"}
		}
	}

	out := make([]Driver, 0, len(records)-1)
	for rowIdx := 1; rowIdx < len(records); rowIdx++ {
		rec := records[rowIdx]
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		rowErr := func(field, reason string) error {
			return &ValidationError{DriverID: get("driver_id"), Field: field, Reason: fmt.Sprintf("row %d: %s", rowIdx+1, reason)}
		}
		getInt := func(name string) (int, error) {
			v, err := strconv.Atoi(get(name))
			if err != nil {
				return 0, rowErr(name, fmt.Sprintf("%q is not an integer", get(name)))
			}
			return v, nil
		}
		getFloat := func(name string, fallback float64) (float64, error) {
			s := get(name)
			if s == "" {
				return fallback, nil
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, rowErr(name, fmt.Sprintf("%q is not a number", s))
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, rowErr(name, fmt.Sprintf("%q is not finite", s))
			}
			return v, nil
		}

		typ, err := persona.ParseType(get("persona_type"))
		if err != nil {
			return nil, rowErr("persona_type", err.Error())
		}
		prof := persona.MustLookup(typ)

		d := Driver{
			ID:           get("driver_id"),
			VehicleMake:  get("vehicle_make"),
			VehicleModel: get("vehicle_model"),
			DataSource:   telemetry.DataSource(get("data_source")),
		}
		if d.Age, err = getInt("driver_age"); err != nil {
			return nil, err
		}
		if d.YearsLicensed, err = getInt("years_licensed"); err != nil {
			return nil, err
		}
		if d.VehicleAge, err = getInt("vehicle_age"); err != nil {
			return nil, err
		}
		if d.PriorAccidents, err = getInt("prior_at_fault_accidents"); err != nil {
			return nil, err
		}
		if get("prior_violations") != "" {
			if d.PriorViolations, err = getInt("prior_violations"); err != nil {
				return nil, err
			}
		}
		if get("prior_claims") != "" {
			if d.PriorClaims, err = getInt("prior_claims"); err != nil {
				return nil, err
			}
		}

		p := persona.Params{Type: typ, BadWeatherAvoidance: prof.BadWeatherAvoidance}
		fields := []struct {
			name string
			dst  *float64
			rng  persona.Range
		}{
			{"hard_brake_rate_base", &p.HardBrakeRate, prof.HardBrakeRate},
			{"rapid_accel_rate_base", &p.RapidAccelRate, prof.RapidAccelRate},
			{"harsh_corner_rate_base", &p.HarshCornerRate, prof.HarshCornerRate},
			{"swerving_rate_base", &p.SwervingRate, prof.SwervingRate},
			{"speeding_rate_base", &p.SpeedingRate, prof.SpeedingRate},
			{"phone_usage_pct", &p.PhoneUsage, prof.PhoneUsage},
			{"avg_speed_multiplier", &p.SpeedMultiplier, prof.SpeedMultiplier},
			{"jerk_multiplier", &p.JerkMultiplier, prof.JerkMultiplier},
			{"night_driving_pct", &p.NightDriving, prof.NightDriving},
		}
		for _, f := range fields {
			if *f.dst, err = getFloat(f.name, (f.rng.Min+f.rng.Max)/2); err != nil {
				return nil, err
			}
			if *f.dst < 0 {
				return nil, rowErr(f.name, "negative")
			}
		}
		d.Persona = p

		if get("claim_probability") == "" {
			d.ClaimProbability = ClaimProbability(d)
		} else {
			if d.ClaimProbability, err = getFloat("claim_probability", 0); err != nil {
				return nil, err
			}
			if d.ClaimProbability < 0 || d.ClaimProbability > 1 {
				return nil, rowErr("claim_probability", fmt.Sprintf("%g outside 0-1", d.ClaimProbability))
			}
		}

		out = append(out, d)
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}
