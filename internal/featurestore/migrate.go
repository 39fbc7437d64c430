package featurestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Backends accepted by Migrator.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Migrator returns a goose provider over the embedded migrations for
// backend. Closing the provider closes db.
func Migrator(db *sql.DB, backend string) (*goose.Provider, error) {
	var d goose.Dialect
	switch backend {
	case BackendPostgres:
		d = goose.DialectPostgres
	case BackendSQLite:
		d = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	fsys, err := fs.Sub(migrations, "migrations/"+backend)
	if err != nil {
		return nil, fmt.Errorf("migrations for %s: %w", backend, err)
	}
	p, err := goose.NewProvider(d, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// Migrate applies pending migrations.
func (s *sqlStore) Migrate(ctx context.Context) error {
	p, err := Migrator(s.db, s.d.name)
	if err != nil {
		return err
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", s.d.name, err)
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func (s *sqlStore) SchemaVersion(ctx context.Context) (int64, error) {
	p, err := Migrator(s.db, s.d.name)
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return v, nil
}
