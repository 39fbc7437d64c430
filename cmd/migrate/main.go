// Command migrate manages the feature store schema via goose.
//
// Usage:
//
//	go run ./cmd/migrate up             # Apply all pending migrations
//	go run ./cmd/migrate down           # Roll back the last migration
//	go run ./cmd/migrate status         # Show migration status
//	go run ./cmd/migrate version        # Show current schema version
//	go run ./cmd/migrate up-to <v>      # Migrate up to version v
//	go run ./cmd/migrate down-to <v>    # Roll back to version v
//
// The target is DATABASE_URL (postgres) or SQLITE_PATH.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/mbd888/drivesim/internal/config"
	"github.com/mbd888/drivesim/internal/featurestore"
	"github.com/mbd888/drivesim/internal/logging"
)

func main() {
	logger := logging.New("info", "text")
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands: up, down, status, version, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, backend, err := openDB(cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	command := os.Args[1]
	if err := run(ctx, db, backend, command, os.Args[2:], os.Stdout); err != nil {
		logger.Error("migration failed", "command", command, "backend", backend, "error", err)
		stop()
		os.Exit(1)
	}
}

func openDB(cfg *config.Config) (*sql.DB, string, error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return db, featurestore.BackendPostgres, nil
	case cfg.SQLitePath != "":
		db, err := featurestore.OpenSQLiteDB(cfg.SQLitePath)
		return db, featurestore.BackendSQLite, err
	default:
		return nil, "", fmt.Errorf("DATABASE_URL or SQLITE_PATH is required")
	}
}

func run(ctx context.Context, db *sql.DB, backend, command string, args []string, out io.Writer) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	p, err := featurestore.Migrator(db, backend)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		res, err := p.Up(ctx)
		printResults(out, res)
		return err
	case "down":
		r, err := p.Down(ctx)
		if r != nil {
			printResults(out, []*goose.MigrationResult{r})
		}
		return err
	case "up-to", "down-to":
		if len(args) != 1 {
			return fmt.Errorf("%s needs a version", command)
		}
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad version %q: %w", args[0], err)
		}
		var res []*goose.MigrationResult
		if command == "up-to" {
			res, err = p.UpTo(ctx, v)
		} else {
			res, err = p.DownTo(ctx, v)
		}
		printResults(out, res)
		return err
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			_, _ = fmt.Fprintf(out, "%05d  %-8s  %s  %s\n", st.Source.Version, st.State, applied, st.Source.Path)
		}
		return nil
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "version %d\n", v)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printResults(out io.Writer, res []*goose.MigrationResult) {
	if len(res) == 0 {
		_, _ = fmt.Fprintln(out, "no migrations to run")
		return
	}
	for _, r := range res {
		_, _ = fmt.Fprintf(out, "%-4s %05d %s (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration)
	}
}
