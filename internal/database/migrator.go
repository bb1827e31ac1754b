package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationsTable is golang-migrate's bookkeeping table.
const MigrationsTable = "schema_migrations"

// MigrationStatus is the schema version after a migration action.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	// Changed is false when the action had nothing to do.
	Changed bool
}

func (s MigrationStatus) String() string {
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

// Migrator applies the PostgreSQL migrations embedded in the binary.
type Migrator struct {
	m      *migrate.Migrate
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// NewMigrator creates a migrator sharing db's pool. Close releases the
// stdlib handle it opens, not the pool.
func NewMigrator(db *DB, logger zerolog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if db.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{
		m:      m,
		sqlDB:  sqlDB,
		logger: logger.With().Str("component", "migrator").Logger(),
	}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() (MigrationStatus, error) {
	return m.apply("up", m.m.Up)
}

// Down reverts every applied migration.
func (m *Migrator) Down() (MigrationStatus, error) {
	return m.apply("down", m.m.Down)
}

// Steps applies n migrations, or reverts -n when n is negative.
func (m *Migrator) Steps(n int) (MigrationStatus, error) {
	return m.apply(fmt.Sprintf("steps %+d", n), func() error { return m.m.Steps(n) })
}

// Force records version as applied and clears the dirty flag without running
// any SQL. It is the recovery path after a failed migration.
func (m *Migrator) Force(version int) (MigrationStatus, error) {
	return m.apply(fmt.Sprintf("force %d", version), func() error { return m.m.Force(version) })
}

// Status reports the current version. A database without any applied
// migration is version 0.
func (m *Migrator) Status() (MigrationStatus, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	return MigrationStatus{Version: v, Dirty: dirty}, nil
}

func (m *Migrator) apply(action string, fn func() error) (MigrationStatus, error) {
	changed := true
	if err := fn(); err != nil {
		// Steps past the last file surfaces as os.ErrNotExist.
		if !errors.Is(err, migrate.ErrNoChange) && !errors.Is(err, os.ErrNotExist) {
			return MigrationStatus{}, fmt.Errorf("migrate %s: %w", action, err)
		}
		changed = false
	}

	st, err := m.Status()
	if err != nil {
		return MigrationStatus{}, err
	}
	st.Changed = changed
	m.logger.Info().
		Str("action", action).
		Uint("version", st.Version).
		Bool("dirty", st.Dirty).
		Bool("changed", changed).
		Msg("migration applied")
	return st, nil
}

// Close releases the migration source and the stdlib database handle.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	var closeErr error
	if m.sqlDB != nil {
		closeErr = m.sqlDB.Close()
	}
	return errors.Join(srcErr, dbErr, closeErr)
}
