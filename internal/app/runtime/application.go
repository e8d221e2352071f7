package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/datamigrations/internal/app/httpapi"
	"github.com/R3E-Network/datamigrations/internal/app/storage/postgres"
	"github.com/R3E-Network/datamigrations/internal/appconfig"
	"github.com/R3E-Network/datamigrations/internal/config"
	"github.com/R3E-Network/datamigrations/internal/database"
	"github.com/R3E-Network/datamigrations/internal/middleware"
	"github.com/R3E-Network/datamigrations/internal/platform/otel"
	"github.com/R3E-Network/datamigrations/pkg/logger"
)

// Application wires the API service dependencies and manages the HTTP server
// lifecycle.
type Application struct {
	cfg         *config.Config
	log         *logger.Logger
	httpServer  *http.Server
	limiter     *middleware.RateLimiter
	db          *sqlx.DB
	shutdownTel func(context.Context) error
}

// setupTelemetry is replaced in tests.
var setupTelemetry = otel.Setup

// NewApplication constructs the API service from cfg.
func NewApplication(ctx context.Context, cfg *config.Config) (_ *Application, err error) {
	if err := cfg.ValidateAPI(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := newLogger(cfg, "apiservice")

	shutdownTel := startTelemetry(ctx, cfg, "apiservice", log)
	defer func() {
		if err != nil {
			stopTelemetry(shutdownTel, log)
		}
	}()

	seedCfg, err := cfg.SeedConfig()
	if err != nil {
		return nil, fmt.Errorf("load seed config: %w", err)
	}

	client, err := newConfigClient(cfg, log)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database, database.DefaultRetryPolicy())
	if err != nil {
		return nil, fmt.Errorf("configure database: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, log)
	tracing := middleware.NewTracingMiddleware(log, nil)

	handler := httpapi.NewHandler(httpapi.Dependencies{
		People:     postgres.New(db),
		Config:     client,
		Label:      seedCfg.Label,
		DB:         db,
		Logger:     log,
		Middleware: []mux.MiddlewareFunc{tracing.Handler, limiter.Handler},
	})

	return &Application{
		cfg: cfg,
		log: log,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		limiter:     limiter,
		db:          db,
		shutdownTel: shutdownTel,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	stop := make(chan struct{})
	defer close(stop)
	a.limiter.StartCleanup(time.Minute, stop)

	go func() {
		a.log.Infof("HTTP server listening on %s", a.cfg.HTTP.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	if err := a.shutdownTel(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error flushing traces")
	}

	return nil
}

func startTelemetry(ctx context.Context, cfg *config.Config, fallback string, log *logger.Logger) func(context.Context) error {
	shutdown, err := setupTelemetry(ctx, serviceName(cfg, fallback), cfg.Telemetry.Endpoint)
	if err != nil {
		log.WithError(err).Warn("tracing disabled: exporter setup failed")
	}
	if shutdown == nil {
		shutdown = func(context.Context) error { return nil }
	}
	return shutdown
}

func stopTelemetry(shutdown func(context.Context) error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.WithError(err).Warn("error flushing traces")
	}
}

func newLogger(cfg *config.Config, component string) *logger.Logger {
	return logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
		Component:  component,
	})
}

func serviceName(cfg *config.Config, fallback string) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	return fallback
}

func newConfigClient(cfg *config.Config, log *logger.Logger) (appconfig.Client, error) {
	client, target, err := appconfig.NewFromConnection(cfg.AppConfig.Connection, &appconfig.Options{
		Timeout: cfg.AppConfig.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("configure app configuration client: %w", err)
	}
	log.WithField("target", target.String()).Infof("using %s configuration store", target.Kind)
	return client, nil
}
