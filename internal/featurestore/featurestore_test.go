package featurestore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/testutil"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// exerciseStore runs the common Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	recs := testutil.Records(2, 3, start)
	recs[1].HasDTCCodes = true
	recs[1].HadClaimInPeriod = true
	recs[1].ClaimSeverity = 12345.5
	require.NoError(t, s.Write(ctx, "run-1", recs))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	got, err := s.Get(ctx, "DRV-00001", "2024-02")
	require.NoError(t, err)
	assert.Equal(t, recs[1], *got)

	_, err = s.Get(ctx, "DRV-00001", "2030-01")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListByDriver(ctx, "DRV-00002")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"},
		[]string{list[0].Month, list[1].Month, list[2].Month})

	// Rewriting a key replaces it.
	upd := recs[0]
	upd.TotalTrips = 7
	require.NoError(t, s.Write(ctx, "run-2", []features.Record{upd}))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	got, err = s.Get(ctx, upd.DriverID, upd.Month)
	require.NoError(t, err)
	assert.Equal(t, 7, got.TotalTrips)

	require.NoError(t, s.Write(ctx, "run-3", nil))
	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, "run-2", s.RunID("DRV-00001", "2024-01"))
	assert.Equal(t, "run-1", s.RunID("DRV-00001", "2024-02"))
	assert.Empty(t, s.RunID("nobody", "2024-01"))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "features.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "run-1", testutil.Records(1, 2, start)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStore_CanceledWrite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "f.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Write(ctx, "run-1", testutil.Records(1, 1, start))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgresStore(t *testing.T) {
	db := testutil.PGTest(t)
	s := NewPostgresStore(db)
	require.NoError(t, s.Migrate(context.Background()))

	exerciseStore(t, s)
}

func TestUpsertSQL(t *testing.T) {
	q := upsertSQL(postgresDialect)
	assert.Contains(t, q, "ON CONFLICT (driver_id, month) DO UPDATE SET")
	assert.Contains(t, q, "$38")
	assert.NotContains(t, q, "driver_id = excluded.driver_id")

	q = upsertSQL(sqliteDialect)
	assert.Equal(t, len(storedColumns), strings.Count(q, "?"))
}

func TestMigrations_CoverStoredColumns(t *testing.T) {
	for _, backend := range []string{BackendPostgres, BackendSQLite} {
		data, err := migrations.ReadFile("migrations/" + backend + "/00001_create_monthly_features.sql")
		require.NoError(t, err, backend)
		sql := string(data)
		assert.Contains(t, sql, "-- +goose Up", backend)
		assert.Contains(t, sql, "-- +goose Down", backend)
		assert.Contains(t, sql, "PRIMARY KEY (driver_id, month)", backend)
		for _, c := range storedColumns {
			assert.Regexp(t, `(?m)^\s+`+c+`\s+[A-Z]`, sql, "%s: %s", backend, c)
		}
	}
}

func TestMigrator_UnknownBackend(t *testing.T) {
	_, err := Migrator(nil, "oracle")
	assert.Error(t, err)
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "f.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, s.Migrate(ctx))
	v, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestSQLiteStore_ErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "f.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Count(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count monthly_features")

	_, err = s.Get(ctx, "DRV-00001", "2024-01")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get DRV-00001/2024-01")

	_, err = s.ListByDriver(ctx, "DRV-00001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list DRV-00001")
}

func TestRecordArgsMatchColumns(t *testing.T) {
	r := testutil.Record("DRV-1", "2024-01")
	assert.Len(t, recordArgs("run", &r), len(storedColumns))
}
