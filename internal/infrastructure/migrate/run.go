package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"gorm.io/gorm"

	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// ErrDirtySchema means a previous migration stopped halfway. The schema must
// be repaired and the version forced before the service can start.
var ErrDirtySchema = errors.New("schema is dirty")

// State is the schema version golang-migrate has recorded.
// Fresh is set when no migration has ever been applied.
type State struct {
	Version uint
	Dirty   bool
	Fresh   bool
}

// Report describes one migration run.
type Report struct {
	From State
	To   State
}

func (r Report) Applied() bool {
	return r.From.Fresh != r.To.Fresh || r.From.Version != r.To.Version
}

type migrator interface {
	Up() error
	Version() (uint, bool, error)
}

func RunMigrations(db *gorm.DB, migrationPath string) (Report, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return Report{}, fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return Report{}, fmt.Errorf("creating postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationPath),
		"postgres",
		driver,
	)
	if err != nil {
		return Report{}, fmt.Errorf("creating migrate instance: %w", err)
	}

	return apply(m)
}

func apply(m migrator) (Report, error) {
	from, err := readState(m)
	if err != nil {
		return Report{}, err
	}
	if from.Dirty {
		return Report{From: from, To: from}, fmt.Errorf("%w at version %d", ErrDirtySchema, from.Version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Report{From: from, To: from}, fmt.Errorf("applying migrations: %w", err)
	}

	to, err := readState(m)
	if err != nil {
		return Report{From: from, To: from}, err
	}
	return Report{From: from, To: to}, nil
}

func readState(m migrator) (State, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return State{Fresh: true}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading schema version: %w", err)
	}
	return State{Version: version, Dirty: dirty}, nil
}
