// Package migration applies the embedded Postgres schema with golang-migrate.
package migration

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// Registers the postgres:// database driver.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator is the subset of *migrate.Migrate used by Runner.
type Migrator interface {
	Up() error
	Down() error
	Close() (error, error)
}

// Engine builds a Migrator for a database URL.
type Engine func(databaseURL string) (Migrator, error)

// DefaultEngine reads migrations from the embedded files.
func DefaultEngine(databaseURL string) (Migrator, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", source, databaseURL)
}

// Runner applies or reverts the schema.
type Runner struct {
	databaseURL string
	engine      Engine
	logger      *zap.Logger
}

// NewRunner constructs a Runner. A nil engine selects DefaultEngine.
func NewRunner(databaseURL string, engine Engine, logger *zap.Logger) *Runner {
	if engine == nil {
		engine = DefaultEngine
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{databaseURL: databaseURL, engine: engine, logger: logger}
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (r *Runner) Up() error {
	return r.run("up", func(m Migrator) error { return m.Up() })
}

// Down reverts every migration.
func (r *Runner) Down() error {
	return r.run("down", func(m Migrator) error { return m.Down() })
}

func (r *Runner) run(direction string, apply func(Migrator) error) (err error) {
	m, err := r.engine(r.databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		err = errors.Join(err, sourceErr, dbErr)
	}()

	if err := apply(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("schema up to date", zap.String("direction", direction))
			return nil
		}
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	r.logger.Info("schema migrated", zap.String("direction", direction))
	return nil
}
