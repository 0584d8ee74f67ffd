// Package server builds the aggregator's long-lived dependencies and runs the
// HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/api"
	"github.com/JakeFAU/progress-aggregator/internal/clock/system"
	"github.com/JakeFAU/progress-aggregator/internal/config"
	"github.com/JakeFAU/progress-aggregator/internal/id/uuid"
	"github.com/JakeFAU/progress-aggregator/internal/logging"
	"github.com/JakeFAU/progress-aggregator/internal/progress"
	progresssinks "github.com/JakeFAU/progress-aggregator/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/progress-aggregator/internal/publisher/pubsub"
	"github.com/JakeFAU/progress-aggregator/internal/simulate"
	memorystore "github.com/JakeFAU/progress-aggregator/internal/storage/memory"
	pgstore "github.com/JakeFAU/progress-aggregator/internal/storage/postgres"
	"github.com/JakeFAU/progress-aggregator/internal/store"
	"github.com/JakeFAU/progress-aggregator/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	registerer   prometheus.Registerer
	apiServer    *api.Server
	progressHub  *progress.Hub
	progressRepo store.ProgressRepository
	pgStore      *pgstore.ProgressStore
	publisher    *gcppublisher.Publisher
	runner       *simulate.Runner
	launcher     *simulate.Launcher
	tracer       *sdktrace.TracerProvider

	closeOnce sync.Once
	closeErr  error
}

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithRegisterer registers sink collectors somewhere other than the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.registerer = reg
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(logging.Config{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		app.logger = logger
		zap.ReplaceGlobals(logger)
	}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("total_quota", cfg.Tracker.TotalQuota),
	)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracer = tp
		app.logger.Info("tracing enabled", zap.Float64("sample_ratio", cfg.Tracing.SampleRatio))
	}

	if err := setupDatabase(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupPublisher(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := setupProgress(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	runner, err := simulate.NewRunner(simulate.Config{
		Name:         cfg.Simulate.Name,
		Contributors: cfg.Simulate.Contributors,
		Steps:        cfg.Simulate.Steps,
		StepDelay:    cfg.Simulate.StepDelay(),
		Stagger:      cfg.Simulate.Stagger(),
		TotalQuota:   cfg.Tracker.TotalQuota,
		InitialDelay: cfg.InitialDelay(),
	}, uuid.New(), app.progressHub, system.New(), app.logger.Named("simulate"))
	if err != nil {
		if cerr := app.progressHub.Close(ctx); cerr != nil {
			app.logger.Warn("progress hub close failed", zap.Error(cerr))
		}
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("simulation runner init failed: %w", err)
	}
	app.runner = runner
	app.launcher = simulate.NewLauncher(runner, app.logger.Named("launcher"))

	app.apiServer = api.NewServer(
		app.progressRepo,
		app.launcher,
		app.readiness,
		*cfg,
		app.logger.Named("api"),
	)
	return app, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("No DSN specified for database, using in-memory progress repository")
		app.progressRepo = memorystore.NewProgressStore()
		return nil
	}
	pg, err := pgstore.NewProgressStore(ctx, pgstore.Config{
		DSN:      app.cfg.DB.DSN,
		MaxConns: int32(app.cfg.DB.MaxConns), //nolint:gosec // validated small positive value
	})
	if err != nil {
		return fmt.Errorf("progress store init failed: %w", err)
	}
	app.pgStore = pg
	app.progressRepo = pg
	if app.cfg.DB.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		app.logger.Info("progress schema migrated")
	}
	app.logger.Info("postgres progress repository initialized", zap.Int("max_conns", app.cfg.DB.MaxConns))
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("No Pub/Sub topic configured, tracker events will not be published")
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return err
	}
	app.publisher = pub
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return nil
}

func setupProgress(ctx context.Context, app *App) error {
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(app.progressRepo, app.logger.Named("progress_store")),
	}
	if app.cfg.Sinks.Log {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("Added progress log sink")
	}
	if app.cfg.Sinks.Prometheus {
		promSink, err := progresssinks.NewPrometheusSink(app.registerer)
		if err != nil {
			return fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added progress prometheus sink")
	}
	if app.publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPubSubSink(app.publisher, app.cfg.Sinks.PubSubContributors))
		app.logger.Debug("Added progress pubsub sink")
	}
	hubCfg := progress.Config{
		BufferSize:     app.cfg.Hub.BufferSize,
		MaxBatchEvents: app.cfg.Hub.MaxBatchEvents,
		MaxBatchWait:   app.cfg.Hub.MaxBatchWait(),
		SinkTimeout:    app.cfg.Hub.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func (a *App) readiness(ctx context.Context) error {
	if a.pgStore == nil {
		return nil
	}
	return a.pgStore.Ping(ctx)
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Repository returns the progress repository the store sink writes to.
func (a *App) Repository() store.ProgressRepository {
	return a.progressRepo
}

// Handler returns the HTTP handler for the API, instrumented for tracing
// when enabled.
func (a *App) Handler() http.Handler {
	if a.tracer != nil {
		return otelhttp.NewHandler(a.apiServer.Handler(), "aggregator.http")
	}
	return a.apiServer.Handler()
}

// Simulate runs one simulation to completion in the foreground.
func (a *App) Simulate(ctx context.Context, opts simulate.Options) (simulate.Result, error) {
	id, err := a.runner.NewTrackerID()
	if err != nil {
		return simulate.Result{}, err
	}
	result, err := a.runner.Run(ctx, id, opts)
	if err != nil {
		return result, fmt.Errorf("simulation %s: %w", id, err)
	}
	return result, nil
}

// Run serves HTTP and blocks until ctx is canceled or a termination signal
// arrives, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close stops running simulations, drains the hub into its sinks and closes
// the remaining clients. Later calls return the first call's result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = a.shutdown(ctx)
	})
	return a.closeErr
}

func (a *App) shutdown(ctx context.Context) error {
	var errs []error
	if a.launcher != nil {
		if err := a.launcher.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
		a.tracer = nil
	}
}
