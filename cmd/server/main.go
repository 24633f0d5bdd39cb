package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	alertapp "github.com/medrx/backend/internal/application/alert"
	fulfillmentapp "github.com/medrx/backend/internal/application/fulfillment"
	inventoryapp "github.com/medrx/backend/internal/application/inventory"
	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/infrastructure/cache"
	"github.com/medrx/backend/internal/infrastructure/config"
	"github.com/medrx/backend/internal/infrastructure/event"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/infrastructure/migration"
	"github.com/medrx/backend/internal/infrastructure/persistence"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"github.com/medrx/backend/internal/interfaces/http/handler"
	"github.com/medrx/backend/internal/interfaces/http/middleware"
	"github.com/medrx/backend/internal/interfaces/http/router"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const stockMetricsInterval = 30 * time.Second

func main() {
	migrateOnStart := pflag.Bool("migrate", false, "apply pending SQL migrations before serving (postgres only)")
	configFile := pflag.String("config", "", "config file; default searches ., ./backend and /app for config.toml")
	pflag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
		Service:    cfg.Telemetry.ServiceName,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *migrateOnStart); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
	log.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config, baseLog *zap.Logger, migrateOnStart bool) error {
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		LogExportEnabled:  cfg.Telemetry.LogExportEnabled,
	}, baseLog)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	log := providers.BridgeLogger(baseLog, zapcore.InfoLevel)
	meter := providers.Meter("medrx-backend")

	log.Info("Starting medication fulfillment service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("database", cfg.Database.Driver),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.Open(ctx, &cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", db.Driver()))

	if err := prepareSchema(ctx, db, migrateOnStart, log); err != nil {
		return err
	}

	if err := telemetry.InstrumentDB(db.DB, meter, telemetry.DBConfig{
		TraceEnabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        db.System(),
	}, log); err != nil {
		return fmt.Errorf("instrument database: %w", err)
	}

	dedupStore, err := cache.NewDedupStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		return err
	}
	if closer, ok := dedupStore.(io.Closer); ok {
		defer closer.Close()
	}

	// Repositories
	scope := persistence.NewGormTransactionScope(db.DB).WithRequestLockTimeout(cfg.Fulfillment.LockTimeout)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	requestRepo := persistence.NewGormRequestRepository(db.DB).WithLockTimeout(cfg.Fulfillment.LockTimeout)
	alertRepo := persistence.NewGormAlertRepository(db.DB)

	fulfillmentMetrics, err := telemetry.NewFulfillmentMetrics(meter, log)
	if err != nil {
		return fmt.Errorf("fulfillment metrics: %w", err)
	}

	eventBus := event.NewInMemoryEventBus(log)
	sink := alertapp.NewLoggingNotificationSink(log)

	audiences := make([]alert.Audience, 0, len(cfg.Alert.Audiences))
	for _, a := range cfg.Alert.Audiences {
		audiences = append(audiences, alert.Audience(a))
	}
	dispatcher := alertapp.NewDispatcher(alertRepo, alertapp.Config{
		Window:    cfg.Alert.DedupWindow,
		Audiences: audiences,
	}, log).
		WithBatchFlags(batchRepo).
		WithDedupStore(dedupStore).
		WithNotificationSink(sink).
		WithMetrics(fulfillmentMetrics)

	var allocatorOpts []inventory.AllocatorOption
	if cfg.Fulfillment.ExcludeExpired {
		allocatorOpts = append(allocatorOpts, inventory.WithExpiredBatchesExcluded(time.Now))
	}
	manager := fulfillmentapp.NewManager(
		scope,
		inventory.NewAllocator(batchRepo, allocatorOpts...),
		requestRepo,
		ledgerRepo,
		eventBus,
		fulfillmentapp.Config{
			LockTimeout:         cfg.Fulfillment.LockTimeout,
			MaxConflictRetries:  cfg.Fulfillment.MaxConflictRetries,
			MaxTransientRetries: cfg.Fulfillment.MaxTransientRetries,
			MaxCallerRetries:    cfg.Fulfillment.MaxCallerRetries,
			TransientBackoff:    cfg.Fulfillment.TransientBackoff,
		},
		log,
	)
	manager.SetMetrics(fulfillmentMetrics)

	batchService := inventoryapp.NewBatchService(scope, batchRepo, ledgerRepo, cfg.Fulfillment.LockTimeout, log)
	batchService.SetEventPublisher(eventBus)

	// Event subscriptions
	eventBus.Subscribe(dispatcher)
	eventBus.Subscribe(fulfillmentapp.NewNotificationHandler(sink, alert.Audience(cfg.Alert.ShortageAudience), log))
	eventBus.Subscribe(event.NewDedupHandler(fulfillmentapp.NewApprovalHandler(manager, log), dedupStore, log,
		event.WithDeliveryMetrics(meter)))
	log.Info("Event handlers registered")

	stockMetrics, err := telemetry.NewStockMetrics(meter, persistence.NewGormStockStats(db.DB), log)
	if err != nil {
		return fmt.Errorf("stock metrics: %w", err)
	}

	// HTTP surface
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	health := handler.NewHealthHandler(2*time.Second).
		AddCheck("database", db.Ping)
	if pinger, ok := dedupStore.(interface{ Ping(context.Context) error }); ok {
		health.AddCheck("redis", pinger.Ping)
	}

	tracing := middleware.DefaultTracingConfig()
	tracing.ServiceName = cfg.Telemetry.ServiceName
	tracing.Enabled = cfg.Telemetry.Enabled
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	engine := router.New(router.Config{
		Logger:       log,
		Meter:        meter,
		Tracing:      tracing,
		CORS:         cors,
		MaxBodyBytes: cfg.HTTP.MaxBodySize,
		Health:       health.Health,
	},
		handler.NewFulfillmentHandler(manager).WithPublisher(eventBus),
		handler.NewBatchHandler(batchService),
		handler.NewAlertHandler(dispatcher),
	)
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		stockMetrics.Start(gctx, stockMetricsInterval)
		<-gctx.Done()
		stockMetrics.Stop()
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := eventBus.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("event bus stop: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// prepareSchema brings the schema up to date: GORM models for SQLite, the
// embedded SQL migrations for PostgreSQL when migrateOnStart is set.
func prepareSchema(ctx context.Context, db *persistence.Database, migrateOnStart bool, log *zap.Logger) error {
	if db.Driver() == persistence.DriverSQLite {
		return db.AutoMigrate(ctx)
	}
	if !migrateOnStart {
		return nil
	}
	m, err := migration.New(db.SQL(), log)
	if err != nil {
		return err
	}
	// Close would also close the pool, which the server still needs.
	return m.Up()
}
