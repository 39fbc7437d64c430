// Package featurestore persists the monthly feature table. Records are
// upserted by (driver_id, month); trip-level data is never stored.
package featurestore

import (
	"context"
	"errors"

	"github.com/mbd888/drivesim/internal/features"
)

var ErrNotFound = errors.New("featurestore: not found")

// Store is a sink for finished feature records.
type Store interface {
	// Write upserts recs in one batch, tagging them with runID.
	Write(ctx context.Context, runID string, recs []features.Record) error
	// Get returns one driver-month.
	Get(ctx context.Context, driverID, month string) (*features.Record, error)
	// ListByDriver returns a driver's months in order.
	ListByDriver(ctx context.Context, driverID string) ([]features.Record, error)
	// Count returns the number of stored driver-months.
	Count(ctx context.Context) (int, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}
