// Package database opens the PostgreSQL pool and runs work against it under a
// retrying execution strategy.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/datamigrations/internal/config"
)

// DriverName is the database/sql driver used for every connection.
const DriverName = "postgres"

// Open creates the pool described by cfg and pings it under policy, so a
// database that is still starting up does not fail the process.
func Open(ctx context.Context, cfg config.DatabaseConfig, policy RetryPolicy) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn not configured")
	}

	db, err := sqlx.Open(DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	Configure(db, cfg)

	if err := Ping(ctx, db, cfg.PingTimeout, policy); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies the pool limits in cfg. Zero values keep driver defaults.
func Configure(db *sqlx.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// Ping checks connectivity, bounding each attempt by timeout.
func Ping(ctx context.Context, db *sqlx.DB, timeout time.Duration, policy RetryPolicy) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	err := policy.Execute(ctx, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
