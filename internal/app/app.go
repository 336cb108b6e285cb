package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aliuyar1234/govern/internal/config"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/jobs"
	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const jobWorkers = 4

// App holds the application state
type App struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Runner   *jobs.Runner
	Registry *prometheus.Registry
	Services *Services
	Router   http.Handler

	server *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel)

	log.Info().Msg("Initializing governance service")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	runner := jobs.NewRunner(jobs.Options{
		QueueSize:   cfg.JobQueueSize,
		MaxAttempts: cfg.JobMaxAttempts,
		Metrics:     m,
	})
	runner.Start(jobWorkers)

	services := NewServices(pool, runner, m, cfg)

	app := &App{
		Config:   cfg,
		DB:       pool,
		Runner:   runner,
		Registry: registry,
		Services: services,
		Router:   NewRouter(pool, cfg, services, registry),
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown stops accepting requests, drains queued side effects and closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down application")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if a.Runner != nil {
		if err := a.Runner.Shutdown(ctx); err != nil && !errors.Is(err, jobs.ErrRunnerClosed) {
			errs = append(errs, fmt.Errorf("job runner: %w", err))
		}
	}
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}
	return errors.Join(errs...)
}

// setupLogger configures the global logger
func setupLogger(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
