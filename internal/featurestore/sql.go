package featurestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/metrics"
	"github.com/mbd888/drivesim/internal/retry"
	"github.com/mbd888/drivesim/internal/telemetry"
)

const tableName = "monthly_features"

// storedColumns is the table layout: the output columns plus audit fields.
var storedColumns = append(append([]string{}, features.Columns...), "claim_probability", "claim_severity", "run_id")

// dialect captures the differences between the SQL backends. Table
// definitions live in the embedded migrations.
type dialect struct {
	name        string
	placeholder func(n int) string
}

func upsertSQL(d dialect) string {
	ph := make([]string, len(storedColumns))
	var set []string
	for i, c := range storedColumns {
		ph[i] = d.placeholder(i + 1)
		if c != "driver_id" && c != "month" {
			set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (driver_id, month) DO UPDATE SET %s",
		tableName, strings.Join(storedColumns, ", "), strings.Join(ph, ", "), strings.Join(set, ", "))
}

func selectSQL(d dialect, where string) string {
	cols := storedColumns[:len(storedColumns)-1] // run_id is write-only
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(cols, ", "), tableName, where)
}

// recordArgs returns r's values in storedColumns order.
func recordArgs(runID string, r *features.Record) []any {
	return []any{
		r.DriverID, r.Month,
		r.TotalTrips, r.TotalDriveTimeHours, r.TotalMilesDriven,
		r.AvgSpeedMPH, r.MaxSpeedMPH, r.AvgJerkRate,
		r.HardBrakeRatePer100Miles, r.RapidAccelRatePer100Miles,
		r.HarshCorneringRatePer100Mi, r.SwervingEventsPer100Miles,
		r.PctMilesNight, r.PctMilesLateNightWeekend, r.PctMilesWeekdayRushHour,
		r.PctTripTimeScreenOn, r.HandheldEventsRatePerHour,
		r.PctTripTimeOnCallHandheld, r.AvgEngineRPM, r.HasDTCCodes,
		r.AirbagDeploymentFlag, r.DriverAge, r.VehicleAge,
		r.PriorAtFaultAccidents, r.YearsLicensed, string(r.DataSource),
		r.GPSAccuracyAvgMeters, r.DriverPassengerConfidence,
		r.SpeedingRatePer100Miles, r.MaxSpeedOverLimitMPH,
		r.PctMilesHighway, r.PctMilesUrban, r.PctMilesInRainOrSnow,
		r.PctMilesInHeavyTraffic,
		r.HadClaimInPeriod,
		r.ClaimProbability, r.ClaimSeverity, runID,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*features.Record, error) {
	var r features.Record
	var source string
	err := s.Scan(
		&r.DriverID, &r.Month,
		&r.TotalTrips, &r.TotalDriveTimeHours, &r.TotalMilesDriven,
		&r.AvgSpeedMPH, &r.MaxSpeedMPH, &r.AvgJerkRate,
		&r.HardBrakeRatePer100Miles, &r.RapidAccelRatePer100Miles,
		&r.HarshCorneringRatePer100Mi, &r.SwervingEventsPer100Miles,
		&r.PctMilesNight, &r.PctMilesLateNightWeekend, &r.PctMilesWeekdayRushHour,
		&r.PctTripTimeScreenOn, &r.HandheldEventsRatePerHour,
		&r.PctTripTimeOnCallHandheld, &r.AvgEngineRPM, &r.HasDTCCodes,
		&r.AirbagDeploymentFlag, &r.DriverAge, &r.VehicleAge,
		&r.PriorAtFaultAccidents, &r.YearsLicensed, &source,
		&r.GPSAccuracyAvgMeters, &r.DriverPassengerConfidence,
		&r.SpeedingRatePer100Miles, &r.MaxSpeedOverLimitMPH,
		&r.PctMilesHighway, &r.PctMilesUrban, &r.PctMilesInRainOrSnow,
		&r.PctMilesInHeavyTraffic,
		&r.HadClaimInPeriod,
		&r.ClaimProbability, &r.ClaimSeverity,
	)
	if err != nil {
		return nil, err
	}
	r.DataSource = telemetry.DataSource(source)
	return &r, nil
}

// sqlStore implements Store over database/sql for one dialect.
type sqlStore struct {
	db       *sql.DB
	d        dialect
	attempts int
	backoff  time.Duration
}

// Write upserts the batch in one transaction, retrying transient failures.
func (s *sqlStore) Write(ctx context.Context, runID string, recs []features.Record) error {
	if len(recs) == 0 {
		return nil
	}
	query := upsertSQL(s.d)
	err := retry.Do(ctx, s.attempts, s.backoff, func() error {
		return s.writeTx(ctx, query, runID, recs)
	})
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreWritesTotal.WithLabelValues(s.d.name, result).Inc()
	if err != nil {
		return fmt.Errorf("write %d records to %s: %w", len(recs), s.d.name, err)
	}
	return nil
}

func (s *sqlStore) writeTx(ctx context.Context, query, runID string, recs []features.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range recs {
		if _, err = stmt.ExecContext(ctx, recordArgs(runID, &recs[i])...); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", recs[i].DriverID, recs[i].Month, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, driverID, month string) (*features.Record, error) {
	q := selectSQL(s.d, fmt.Sprintf("driver_id = %s AND month = %s", s.d.placeholder(1), s.d.placeholder(2)))
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, driverID, month))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", driverID, month, err)
	}
	return r, nil
}

func (s *sqlStore) ListByDriver(ctx context.Context, driverID string) ([]features.Record, error) {
	q := selectSQL(s.d, fmt.Sprintf("driver_id = %s ORDER BY month", s.d.placeholder(1)))
	rows, err := s.db.QueryContext(ctx, q, driverID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", driverID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []features.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", driverID, err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", driverID, err)
	}
	return out, nil
}

func (s *sqlStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", tableName, err)
	}
	return n, nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// DB exposes the handle for pool-stat collection.
func (s *sqlStore) DB() *sql.DB { return s.db }

func (s *sqlStore) Close() error { return s.db.Close() }
