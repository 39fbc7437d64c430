package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Writer streams records as CSV rows in Columns order. Floats use 4 decimals.
type Writer struct {
	cw          *csv.Writer
	wroteHeader bool
	rows        int
}

// NewWriter creates a Writer; the header is written with the first row or on Flush.
func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: csv.NewWriter(w)}
}

func (w *Writer) header() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	if err := w.cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Write appends one record.
func (w *Writer) Write(r *Record) error {
	if err := w.header(); err != nil {
		return err
	}
	if err := w.cw.Write(r.Row()); err != nil {
		return fmt.Errorf("write record %s/%s: %w", r.DriverID, r.Month, err)
	}
	w.rows++
	return nil
}

// Rows returns the number of records written.
func (w *Writer) Rows() int { return w.rows }

// Flush writes any buffered data, including the header of an empty table.
func (w *Writer) Flush() error {
	if err := w.header(); err != nil {
		return err
	}
	w.cw.Flush()
	return w.cw.Error()
}

// WriteCSV writes a full table.
func WriteCSV(out io.Writer, recs []Record) error {
	w := NewWriter(out)
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func f4(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// Row renders the record in Columns order.
func (r *Record) Row() []string {
	return []string{
		r.DriverID,
		r.Month,
		strconv.Itoa(r.TotalTrips),
		f4(r.TotalDriveTimeHours),
		f4(r.TotalMilesDriven),
		f4(r.AvgSpeedMPH),
		f4(r.MaxSpeedMPH),
		f4(r.AvgJerkRate),
		f4(r.HardBrakeRatePer100Miles),
		f4(r.RapidAccelRatePer100Miles),
		f4(r.HarshCorneringRatePer100Mi),
		f4(r.SwervingEventsPer100Miles),
		f4(r.PctMilesNight),
		f4(r.PctMilesLateNightWeekend),
		f4(r.PctMilesWeekdayRushHour),
		f4(r.PctTripTimeScreenOn),
		f4(r.HandheldEventsRatePerHour),
		f4(r.PctTripTimeOnCallHandheld),
		f4(r.AvgEngineRPM),
		strconv.FormatBool(r.HasDTCCodes),
		strconv.FormatBool(r.AirbagDeploymentFlag),
		strconv.Itoa(r.DriverAge),
		strconv.Itoa(r.VehicleAge),
		strconv.Itoa(r.PriorAtFaultAccidents),
		strconv.Itoa(r.YearsLicensed),
		string(r.DataSource),
		f4(r.GPSAccuracyAvgMeters),
		f4(r.DriverPassengerConfidence),
		f4(r.SpeedingRatePer100Miles),
		f4(r.MaxSpeedOverLimitMPH),
		f4(r.PctMilesHighway),
		f4(r.PctMilesUrban),
		f4(r.PctMilesInRainOrSnow),
		f4(r.PctMilesInHeavyTraffic),
		strconv.FormatBool(r.HadClaimInPeriod),
	}
}
