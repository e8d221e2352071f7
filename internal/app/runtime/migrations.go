package runtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/datamigrations/internal/appconfig"
	"github.com/R3E-Network/datamigrations/internal/config"
	"github.com/R3E-Network/datamigrations/internal/database"
	"github.com/R3E-Network/datamigrations/internal/platform/migrations"
	"github.com/R3E-Network/datamigrations/internal/seed"
	"github.com/R3E-Network/datamigrations/internal/worker"
	"github.com/R3E-Network/datamigrations/pkg/logger"
)

// MigrationJob wires the one-shot migration worker.
type MigrationJob struct {
	log         *logger.Logger
	worker      *worker.Worker
	db          *sqlx.DB
	stopped     chan struct{}
	shutdownTel func(context.Context) error
}

// NewMigrationJob builds the worker and its collaborators from cfg.
func NewMigrationJob(ctx context.Context, cfg *config.Config) (_ *MigrationJob, err error) {
	if err := cfg.ValidateWorker(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := newLogger(cfg, "datamigrations")

	shutdownTel := startTelemetry(ctx, cfg, "datamigrations", log)
	defer func() {
		if err != nil {
			stopTelemetry(shutdownTel, log)
		}
	}()

	seedCfg, err := cfg.SeedConfig()
	if err != nil {
		return nil, fmt.Errorf("load seed config: %w", err)
	}
	wellKnown, err := seedCfg.WellKnownIDs()
	if err != nil {
		return nil, fmt.Errorf("load seed config: %w", err)
	}

	client, err := newConfigClient(cfg, log)
	if err != nil {
		return nil, err
	}

	policy := database.DefaultRetryPolicy()
	db, err := database.Open(ctx, cfg.Database, policy)
	if err != nil {
		return nil, fmt.Errorf("configure database: %w", err)
	}

	job := &MigrationJob{log: log, db: db, stopped: make(chan struct{}), shutdownTel: shutdownTel}
	job.worker = assembleWorker(client, db, policy, log, seedCfg, wellKnown, job.stop)
	return job, nil
}

func assembleWorker(client appconfig.Client, db *sqlx.DB, policy database.RetryPolicy, log *logger.Logger,
	seedCfg *config.SeedConfig, wellKnown []uuid.UUID, stop func()) *worker.Worker {
	strategy := database.NewExecutionStrategy(db, policy, log)
	migrator := migrations.NewMigrator(db.DB, strategy, log)
	coordinator := seed.NewCoordinator(client, seed.NewSQLRows(strategy), seed.WithLogger(log))

	return worker.New(coordinator, migrator, worker.LifetimeFunc(stop), worker.Plan{
		Label:     seedCfg.Label,
		Settings:  seedCfg.Settings,
		WellKnown: wellKnown,
	}, worker.WithLogger(log))
}

func (j *MigrationJob) stop() {
	select {
	case <-j.stopped:
	default:
		close(j.stopped)
	}
}

// Stopped is closed once the worker has asked the process to stop.
func (j *MigrationJob) Stopped() <-chan struct{} {
	return j.stopped
}

// Run executes the worker once.
func (j *MigrationJob) Run(ctx context.Context) error {
	return j.worker.Run(ctx)
}

// Close releases the database pool and flushes traces.
func (j *MigrationJob) Close(ctx context.Context) {
	if err := j.db.Close(); err != nil {
		j.log.WithError(err).Warn("error closing database connection")
	}
	if err := j.shutdownTel(ctx); err != nil {
		j.log.WithError(err).Warn("error flushing traces")
	}
}
