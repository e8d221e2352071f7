package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/datamigrations/pkg/logger"
)

// RunInTransaction runs fn inside a transaction. It commits when fn returns nil
// and rolls back on error or panic; a panic is re-raised after the rollback.
func RunInTransaction(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ExecutionStrategy pairs a connection pool with the retry policy every unit of
// database work runs under.
type ExecutionStrategy struct {
	db     *sqlx.DB
	policy RetryPolicy
	log    *logger.Logger
}

// NewExecutionStrategy returns a strategy that logs retries to log.
func NewExecutionStrategy(db *sqlx.DB, policy RetryPolicy, log *logger.Logger) *ExecutionStrategy {
	if log == nil {
		log = logger.NewDefault("database")
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"wait":    wait.String(),
			}).Warn("transient database error, retrying")
		}
	}
	return &ExecutionStrategy{db: db, policy: policy, log: log}
}

// DB returns the pool the strategy runs against.
func (s *ExecutionStrategy) DB() *sqlx.DB {
	return s.db
}

// Execute runs fn under the retry policy.
func (s *ExecutionStrategy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.policy.Execute(ctx, fn)
}

// InTransaction runs fn in a fresh transaction per attempt. Every attempt sees
// either a fully committed batch or none of it.
func (s *ExecutionStrategy) InTransaction(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return s.policy.Execute(ctx, func(ctx context.Context) error {
		return RunInTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
			return fn(ctx, tx)
		})
	})
}
