package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable keeps guildpass versions apart from other schemas sharing
// the database.
const MigrationsTable = "guildpass_schema_migrations"

var ErrDirtySchema = errors.New("schema_dirty")

// Result reports where the schema ended up.
type Result struct {
	From    uint
	To      uint
	Applied bool
}

// RunMigrations brings the postgres schema up to the newest embedded version.
// A schema left dirty by a failed run is refused rather than retried.
func RunMigrations(db *sql.DB) (Result, error) {
	if db == nil {
		return Result{}, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return Result{}, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return Result{}, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return Result{}, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return Result{}, fmt.Errorf("create migrator: %w", err)
	}
	// Close would also close the shared *sql.DB, so the migrator is left open.

	from, err := currentVersion(migrator)
	if err != nil {
		return Result{}, err
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return Result{From: from, To: from}, nil
		}
		return Result{From: from}, fmt.Errorf("apply migrations: %w", err)
	}

	to, err := currentVersion(migrator)
	if err != nil {
		return Result{From: from}, err
	}
	return Result{From: from, To: to, Applied: to != from}, nil
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("%w: version %d", ErrDirtySchema, version)
	}
	return version, nil
}
