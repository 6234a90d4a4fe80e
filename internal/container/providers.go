package container

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/offer-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/application/service"
	"github.com/garyjia/offer-lifecycle/internal/application/workflow"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/export"
	infraLark "github.com/garyjia/offer-lifecycle/internal/infrastructure/external/lark"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/metrics"
	dynamostore "github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/dynamodb"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/repository"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/worker"
	httpserver "github.com/garyjia/offer-lifecycle/internal/interfaces/http"
	"github.com/garyjia/offer-lifecycle/migrations"
	"github.com/garyjia/offer-lifecycle/pkg/auth"
	"github.com/garyjia/offer-lifecycle/pkg/database"
)

// StoreBundle holds the persistence side of the engine for the selected driver.
type StoreBundle struct {
	Offers      port.OfferRepository
	History     port.HistoryRepository
	TxManager   port.TransactionManager // sqlite only
	Writer      port.AtomicWriter       // memory and dynamodb
	RequestSync port.RequestStatusSyncer

	// SqlDB is set for the sqlite driver only
	SqlDB *sql.DB
}

// MetricsBundle holds the recorder and the scrape handler.
type MetricsBundle struct {
	Recorder *metrics.Recorder
	Handler  http.Handler
}

// ProvideStores opens the configured offer store.
// The sqlite driver also runs pending migrations.
func ProvideStores(ctx context.Context, cfg *Config, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Database.Driver {
	case DriverMemory:
		logger.Info("Using in-memory offer store")
		offers, history := memory.NewLinkedStores()
		return &StoreBundle{
			Offers:      offers,
			History:     history,
			Writer:      offers,
			RequestSync: memory.NewRequestStore(),
		}, nil

	case DriverDynamoDB:
		client, err := dynamostore.NewClient(ctx, dynamostore.ClientConfig{
			Region:          cfg.DynamoDB.Region,
			Endpoint:        cfg.DynamoDB.Endpoint,
			AccessKeyID:     cfg.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.DynamoDB.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Using DynamoDB offer store",
			zap.String("region", cfg.DynamoDB.Region),
			zap.String("offers_table", cfg.DynamoDB.OffersTable))
		offers := dynamostore.NewOfferStore(client, cfg.DynamoDB.OffersTable, logger)
		history := dynamostore.NewHistoryStore(client, cfg.DynamoDB.HistoryTable, logger)
		return &StoreBundle{
			Offers:      offers,
			History:     history,
			Writer:      dynamostore.NewWriter(client, offers, history, logger),
			RequestSync: dynamostore.NewRequestStore(client, cfg.DynamoDB.RequestsTable, logger),
		}, nil

	case DriverSQLite:
		return provideSQLite(&cfg.Database, logger)

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func provideSQLite(cfg *DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrationsFS(migrations.FS, ".")
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &StoreBundle{
		Offers:      repository.NewOfferRepository(db.DB, logger),
		History:     repository.NewHistoryRepository(db.DB, logger),
		TxManager:   sqlite.NewDB(db.DB, logger),
		RequestSync: repository.NewRequestRepository(db.DB, logger),
		SqlDB:       db.DB,
	}, nil
}

// ProvideMessenger creates the Lark message sender, or nil when Lark is disabled.
func ProvideMessenger(cfg *LarkConfig, logger *zap.Logger) port.MessageSender {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	sdkClient := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, logger)

	return infraLark.NewMessenger(sdkClient, logger)
}

// ProvideMetrics creates a private registry with runtime collectors and the lifecycle recorder.
func ProvideMetrics(cfg *MetricsConfig) *MetricsBundle {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsBundle{
		Recorder: metrics.NewRecorder(reg),
		Handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	), nil
}

// EngineDeps holds dependencies required for creating the lifecycle engine.
type EngineDeps struct {
	Stores     *StoreBundle
	Dispatcher dispatcher.Dispatcher
	Metrics    port.MetricsRecorder
	Lifecycle  *LifecycleConfig
	Logger     *zap.Logger
}

// ProvideEngine creates the lifecycle engine.
func ProvideEngine(deps *EngineDeps) (workflow.LifecycleEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("engine dependencies are required")
	}
	if deps.Stores == nil {
		return nil, fmt.Errorf("stores are required")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("engine")}),
		workflow.WithStoreTimeout(deps.Lifecycle.StoreTimeout),
		workflow.WithRequestSyncTimeout(deps.Lifecycle.RequestSyncTimeout),
		workflow.WithManagerApproval(deps.Lifecycle.ManagerApprovalRequired),
		workflow.WithMetrics(deps.Metrics),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}
	if deps.Stores.Writer != nil {
		opts = append(opts, workflow.WithAtomicWriter(deps.Stores.Writer))
	}
	if deps.Stores.RequestSync != nil {
		opts = append(opts, workflow.WithRequestSync(deps.Stores.RequestSync))
	}

	return workflow.NewEngine(
		deps.Stores.Offers,
		deps.Stores.History,
		deps.Stores.TxManager,
		opts...,
	), nil
}

// ServiceBundle groups the application services.
type ServiceBundle struct {
	Notification service.NotificationService // nil when Lark is disabled
	Export       service.ExportService
}

// ProvideServices creates the services and subscribes the notifier to the dispatcher.
func ProvideServices(
	engine workflow.LifecycleEngine,
	sender port.MessageSender,
	disp dispatcher.Dispatcher,
	cfg *LarkConfig,
	logger *zap.Logger,
) (*ServiceBundle, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: logger}
	bundle := &ServiceBundle{
		Export: service.NewExportService(engine, export.NewExcelExporter(logger), serviceLogger),
	}

	if sender != nil && disp != nil {
		bundle.Notification = service.NewNotificationService(sender, service.NotificationConfig{
			ManagerChatID: cfg.ManagerChatID,
			UserIDType:    cfg.ReceiveIDType,
		}, serviceLogger)
		bundle.Notification.Register(disp)
	}

	return bundle, nil
}

// ProvideWorkers creates the worker manager with the expiry sweeper registered but not started.
func ProvideWorkers(engine workflow.LifecycleEngine, cfg *SweeperConfig, recorder port.MetricsRecorder, logger *zap.Logger) (*worker.Manager, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("sweeper config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewManager(logger)
	if !cfg.Enabled {
		logger.Info("Expiry sweeper disabled")
		return manager, nil
	}

	manager.Register(worker.NewExpirySweeper(engine, worker.SweeperConfig{
		Schedule:    cfg.Schedule,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		RunOnStart:  cfg.RunOnStart,
	}, recorder, logger.Named("sweeper")))

	return manager, nil
}

// ProvideTokenManager creates the JWT validator used by the HTTP layer.
func ProvideTokenManager(cfg *AuthConfig) (*auth.TokenManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	return auth.NewTokenManager(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
}

// ProvideHTTPServer creates the HTTP server.
func ProvideHTTPServer(cfg *Config, deps httpserver.Dependencies, logger *zap.Logger) *httpserver.Server {
	serverCfg := httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MetricsPath:  cfg.Metrics.Path,
	}
	return httpserver.NewServer(serverCfg, deps, &zapLoggerAdapter{logger: logger.Named("http")})
}
