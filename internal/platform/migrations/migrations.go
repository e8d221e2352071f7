// Package migrations applies the embedded PostgreSQL schema migrations.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/datamigrations/pkg/logger"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// MigrationsTable records the applied version.
const MigrationsTable = "schema_migrations"

// Executor runs a unit of work, retrying it when the policy allows.
type Executor interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

type directExecutor struct{}

func (directExecutor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Migrator brings the schema up to the latest embedded version.
type Migrator struct {
	db   *sql.DB
	exec Executor
	log  *logger.Logger
}

// NewMigrator returns a Migrator that runs every attempt through exec. A nil
// exec runs once.
func NewMigrator(db *sql.DB, exec Executor, log *logger.Logger) *Migrator {
	if exec == nil {
		exec = directExecutor{}
	}
	if log == nil {
		log = logger.NewDefault("migrations")
	}
	return &Migrator{db: db, exec: exec, log: log}
}

// Source opens the embedded migration files.
func Source() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

// ApplyPending applies every migration newer than the recorded version. An
// up-to-date schema is not an error.
func (m *Migrator) ApplyPending(ctx context.Context) error {
	return m.exec.Execute(ctx, m.up)
}

func (m *Migrator) up(ctx context.Context) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	src, err := Source()
	if err != nil {
		return err
	}

	// WithConnection leaves the pool open when the migrator is closed.
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		src.Close()
		return fmt.Errorf("create migration db driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		src.Close()
		driver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer mg.Close()
	mg.Log = migrateLogger{log: m.log}

	done := make(chan error, 1)
	go func() { done <- mg.Up() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		mg.GracefulStop <- true
		err = <-done
		if err == nil {
			err = ctx.Err()
		}
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, verr := mg.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		m.log.Info("schema has no migrations recorded")
	case verr != nil:
		m.log.WithError(verr).Warn("read schema version")
	default:
		m.log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("schema up to date")
	}
	return nil
}

type migrateLogger struct {
	log *logger.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}
