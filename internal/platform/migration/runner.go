// Copyright (c) 2026 NerdHQ. All rights reserved.

// Package migration provides a thin wrapper around golang-migrate for
// inspecting and running database schema migrations.
//
// # Architecture
//
// Unlike most deployments, Gatekeeper does not force migrations at startup:
// pending migrations are listed and applied on demand through the
// /api/v1/migrations endpoints, gated by the read:migration and
// create:migration capabilities. The wrapper therefore exposes both a
// listing view (Pending, Applied) and an apply operation (Up).
package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers the "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	// file source reads .sql files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Record describes a single migration file.
//
// Versions are unix timestamps, so Timestamp is derived directly from the
// filename prefix.
type Record struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Version   uint      `json:"-"`
}

// Runner lists and applies migrations against a single database.
//
// Each operation opens a fresh migrator; a Runner holds no connections
// between calls, so it is safe for concurrent use.
type Runner struct {
	dsn    string
	dir    string
	logger *slog.Logger
}

// NewRunner constructs a [Runner] for the given DSN and migrations directory.
func NewRunner(dsn, dir string, logger *slog.Logger) *Runner {
	return &Runner{dsn: dsn, dir: dir, logger: logger}
}

// Pending returns the migrations that have not been applied yet, in apply
// order. A clean, fully migrated database returns an empty slice.
func (r *Runner) Pending() ([]Record, error) {
	current, err := r.currentVersion()
	if err != nil {
		return nil, err
	}

	all, err := r.listAll()
	if err != nil {
		return nil, err
	}

	pending := make([]Record, 0, len(all))
	for _, record := range all {
		if record.Version > current {
			pending = append(pending, record)
		}
	}
	return pending, nil
}

// Applied returns the migrations already applied, in apply order.
func (r *Runner) Applied() ([]Record, error) {
	current, err := r.currentVersion()
	if err != nil {
		return nil, err
	}

	all, err := r.listAll()
	if err != nil {
		return nil, err
	}

	applied := make([]Record, 0, len(all))
	for _, record := range all {
		if record.Version <= current {
			applied = append(applied, record)
		}
	}
	return applied, nil
}

// Up applies every pending migration and returns the records it applied.
// Applying on an up-to-date database is a no-op returning an empty slice.
func (r *Runner) Up() ([]Record, error) {
	pending, err := r.Pending()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []Record{}, nil
	}

	migrator, err := r.open()
	if err != nil {
		return nil, err
	}
	defer r.close(migrator)

	r.logger.Info("migration_up_started", slog.Int("pending", len(pending)))

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migration: up failed: %w", err)
	}

	r.logger.Info("migration_up_finished", slog.Int("applied", len(pending)))
	return pending, nil
}

// open builds a migrator with the slog bridge attached.
func (r *Runner) open() (*migrate.Migrate, error) {
	migrator, err := migrate.New("file://"+r.dir, convertToPgx5DSN(r.dsn))
	if err != nil {
		return nil, fmt.Errorf("migration: failed to initialize: %w", err)
	}
	migrator.Log = &migrateLogger{logger: r.logger}
	return migrator, nil
}

func (r *Runner) close(migrator *migrate.Migrate) {
	sourceError, dbError := migrator.Close()
	if sourceError != nil {
		r.logger.Error("migration_source_close_failed", slog.Any("error", sourceError))
	}
	if dbError != nil {
		r.logger.Error("migration_db_close_failed", slog.Any("error", dbError))
	}
}

// currentVersion reads the schema_migrations version, treating a virgin
// database as version 0. A dirty database is refused outright.
func (r *Runner) currentVersion() (uint, error) {
	migrator, err := r.open()
	if err != nil {
		return 0, err
	}
	defer r.close(migrator)

	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("migration: failed to get current version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("migration: database is in a dirty state at version %d (manual intervention required)", version)
	}
	return version, nil
}

// listAll walks the file source and returns every known migration in order.
func (r *Runner) listAll() ([]Record, error) {
	drv, err := source.Open("file://" + r.dir)
	if err != nil {
		return nil, fmt.Errorf("migration: failed to open source: %w", err)
	}
	defer drv.Close()

	records := []Record{}
	version, err := drv.First()
	for err == nil {
		record, readErr := r.describe(drv, version)
		if readErr != nil {
			return nil, readErr
		}
		records = append(records, record)
		version, err = drv.Next(version)
	}

	// The file source signals exhaustion with fs.ErrNotExist.
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("migration: failed to walk source: %w", err)
	}
	return records, nil
}

// describe reads the up-migration identifier for version.
func (r *Runner) describe(drv source.Driver, version uint) (Record, error) {
	reader, identifier, err := drv.ReadUp(version)
	if err != nil {
		return Record{}, fmt.Errorf("migration: failed to read version %d: %w", version, err)
	}
	_ = reader.Close()

	return Record{
		Path:      filepath.Join(r.dir, fmt.Sprintf("%d_%s.up.sql", version, identifier)),
		Name:      identifier,
		Timestamp: time.Unix(int64(version), 0).UTC(),
		Version:   version,
	}, nil
}

// convertToPgx5DSN ensures the DSN uses the pgx5:// scheme required by golang-migrate/v4.
func convertToPgx5DSN(dsn string) string {
	const pgPrefix = "postgres://"
	const pgqlPrefix = "postgresql://"
	const pgx5Prefix = "pgx5://"

	if len(dsn) >= len(pgx5Prefix) && dsn[:len(pgx5Prefix)] == pgx5Prefix {
		return dsn
	}

	if len(dsn) >= len(pgPrefix) && dsn[:len(pgPrefix)] == pgPrefix {
		return pgx5Prefix + dsn[len(pgPrefix):]
	}

	if len(dsn) >= len(pgqlPrefix) && dsn[:len(pgqlPrefix)] == pgqlPrefix {
		return pgx5Prefix + dsn[len(pgqlPrefix):]
	}

	return dsn
}

// migrateLogger adapts golang-migrate's logger interface to slog.
type migrateLogger struct {
	logger *slog.Logger
}

// Printf implements migrate.Logger.
func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Verbose implements migrate.Logger.
func (l *migrateLogger) Verbose() bool {
	return false
}
