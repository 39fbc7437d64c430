package testutil

import (
	"fmt"
	"time"

	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/telemetry"
)

// Record returns a valid feature record for driverID in month.
func Record(driverID, month string) features.Record {
	return features.Record{
		DriverID:                   driverID,
		Month:                      month,
		TotalTrips:                 42,
		TotalDriveTimeHours:        18.5,
		TotalMilesDriven:           612.25,
		AvgSpeedMPH:                33.1,
		MaxSpeedMPH:                78.4,
		AvgJerkRate:                0.42,
		HardBrakeRatePer100Miles:   1.5,
		RapidAccelRatePer100Miles:  0.9,
		HarshCorneringRatePer100Mi: 0.6,
		SwervingEventsPer100Miles:  0.1,
		PctMilesNight:              12.5,
		PctMilesLateNightWeekend:   2.25,
		PctMilesWeekdayRushHour:    31,
		PctTripTimeScreenOn:        4.5,
		HandheldEventsRatePerHour:  0.8,
		PctTripTimeOnCallHandheld:  1.2,
		AvgEngineRPM:               2050,
		DriverAge:                  37,
		VehicleAge:                 6,
		PriorAtFaultAccidents:      1,
		YearsLicensed:              19,
		DataSource:                 telemetry.SourcePhonePlusDevice,
		GPSAccuracyAvgMeters:       5,
		DriverPassengerConfidence:  0.9,
		SpeedingRatePer100Miles:    3.3,
		MaxSpeedOverLimitMPH:       13.4,
		PctMilesHighway:            40,
		PctMilesUrban:              22,
		PctMilesInRainOrSnow:       8,
		PctMilesInHeavyTraffic:     15,
		ClaimProbability:           0.012,
	}
}

// Records returns drivers*months valid records, ordered by driver then
// month, starting at start.
func Records(drivers, months int, start time.Time) []features.Record {
	out := make([]features.Record, 0, drivers*months)
	for d := range drivers {
		id := fmt.Sprintf("DRV-%05d", d+1)
		for m := range months {
			out = append(out, Record(id, features.MonthKey(start.AddDate(0, m, 0))))
		}
	}
	return out
}
