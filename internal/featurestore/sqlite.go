package featurestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists feature records in a local SQLite file.
type SQLiteStore struct {
	sqlStore
}

var sqliteDialect = dialect{
	name:        BackendSQLite,
	placeholder: func(int) string { return "?" },
}

// OpenSQLiteDB opens the database file at path with the pragmas every
// connection needs. It does not migrate.
func OpenSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := OpenSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{sqlStore{db: db, d: sqliteDialect, attempts: 3, backoff: 50 * time.Millisecond}}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	// One writer at a time; WAL lets readers proceed.
	db.SetMaxOpenConns(1)
	return s, nil
}
