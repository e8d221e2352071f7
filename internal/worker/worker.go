// Package worker runs the one-shot deployment task: seed configuration,
// migrate the schema, seed rows, then ask the host to stop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/R3E-Network/datamigrations/internal/app/domain/person"
	"github.com/R3E-Network/datamigrations/internal/app/metrics"
	"github.com/R3E-Network/datamigrations/internal/seed"
	"github.com/R3E-Network/datamigrations/pkg/logger"
)

// TracerName is the instrumentation scope of the worker spans.
const TracerName = "Migrations"

// ErrAlreadyRan is returned by a second call to Run.
var ErrAlreadyRan = errors.New("worker: already ran")

// State is the worker's position in its run.
type State int32

const (
	NotStarted State = iota
	SeedingConfig
	MigratingSchema
	SeedingRows
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case SeedingConfig:
		return "seeding_config"
	case MigratingSchema:
		return "migrating_schema"
	case SeedingRows:
		return "seeding_rows"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// SchemaMigrator applies pending schema migrations.
type SchemaMigrator interface {
	ApplyPending(ctx context.Context) error
}

// Seeder ensures configuration keys and well-known rows exist.
type Seeder interface {
	EnsureConfigDefaults(ctx context.Context, defaults map[string]string, label string) error
	EnsureRows(ctx context.Context, wellKnown []uuid.UUID, factory person.Factory) (seed.RowsResult, error)
}

// Lifetime lets the worker ask its host process to shut down.
type Lifetime interface {
	StopApplication()
}

// LifetimeFunc adapts a function to Lifetime.
type LifetimeFunc func()

func (f LifetimeFunc) StopApplication() { f() }

// Plan is the data a run seeds.
type Plan struct {
	Label     string
	Settings  map[string]string
	WellKnown []uuid.UUID
	Factory   person.Factory
}

// Worker performs a single migration run.
type Worker struct {
	seeder   Seeder
	migrator SchemaMigrator
	lifetime Lifetime
	plan     Plan
	log      *logger.Logger
	tracer   trace.Tracer

	state atomic.Int32
	ran   atomic.Bool
}

// Option customizes a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *Worker) { w.tracer = tp.Tracer(TracerName) }
}

// New returns a worker that has not run yet. A nil lifetime is allowed.
func New(seeder Seeder, migrator SchemaMigrator, lifetime Lifetime, plan Plan, opts ...Option) *Worker {
	w := &Worker{seeder: seeder, migrator: migrator, lifetime: lifetime, plan: plan}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.NewDefault("worker")
	}
	if w.tracer == nil {
		w.tracer = otel.Tracer(TracerName)
	}
	return w
}

// State reports the current state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

type phase struct {
	state State
	name  string
	run   func(ctx context.Context) error
}

// Run executes the phases in order. It checks ctx before each phase and stops
// at the first failure, which is recorded on the span and returned. On
// success the host is asked to stop. Run can be called once.
func (w *Worker) Run(ctx context.Context) error {
	if !w.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}

	ctx, span := w.tracer.Start(ctx, "Running Data Migrations", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var rows seed.RowsResult
	phases := []phase{
		{SeedingConfig, "seed_config", func(ctx context.Context) error {
			return w.seeder.EnsureConfigDefaults(ctx, w.plan.Settings, w.plan.Label)
		}},
		{MigratingSchema, "migrate_schema", w.migrator.ApplyPending},
		{SeedingRows, "seed_rows", func(ctx context.Context) error {
			var err error
			rows, err = w.seeder.EnsureRows(ctx, w.plan.WellKnown, w.plan.Factory)
			return err
		}},
	}

	started := time.Now()
	durations := logrus.Fields{}
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return w.fail(span, p.state, fmt.Errorf("%s: %w", p.state, err))
		}
		w.state.Store(int32(p.state))
		w.log.WithField("phase", p.name).Info("phase started")

		begin := time.Now()
		err := p.run(ctx)
		elapsed := time.Since(begin)
		metrics.ObserveWorkerPhase(p.name, elapsed)
		durations[p.name] = elapsed.String()
		span.AddEvent(p.name, trace.WithAttributes(attribute.Int64("duration_ms", elapsed.Milliseconds())))

		if err != nil {
			return w.fail(span, p.state, fmt.Errorf("%s: %w", p.state, err))
		}
	}

	w.state.Store(int32(Completed))
	metrics.RecordWorkerRun("success")
	span.SetAttributes(
		attribute.String("seed.generated_id", rows.GeneratedID.String()),
		attribute.Int64("seed.rows_inserted", rows.Inserted),
	)
	span.SetStatus(codes.Ok, "")
	w.log.WithFields(durations).WithFields(logrus.Fields{
		"outcome":       "success",
		"total":         time.Since(started).String(),
		"rows_inserted": rows.Inserted,
		"generated_id":  rows.GeneratedID.String(),
	}).Info("data migrations completed")

	if w.lifetime != nil {
		w.lifetime.StopApplication()
	}
	return nil
}

func (w *Worker) fail(span trace.Span, at State, err error) error {
	w.state.Store(int32(Failed))
	metrics.RecordWorkerRun("failure")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	w.log.WithError(err).WithFields(logrus.Fields{
		"outcome": "failure",
		"phase":   at.String(),
	}).Error("data migrations failed")
	return err
}
