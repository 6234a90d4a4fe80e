package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/offer-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/application/workflow"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/worker"
	httpserver "github.com/garyjia/offer-lifecycle/internal/interfaces/http"
	"github.com/garyjia/offer-lifecycle/pkg/auth"
)

// Container manages all application dependencies and lifecycle.
// Components are built in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	stores    *StoreBundle
	messenger port.MessageSender
	metrics   *MetricsBundle
	tokens    *auth.TokenManager

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.LifecycleEngine
	services   *ServiceBundle

	// Interfaces
	workers *worker.Manager
	server  *httpserver.Server

	// Lifecycle
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and starts the background workers.
// Components are initialized in dependency order:
// 1. Offer store
// 2. External clients (Lark, metrics, tokens)
// 3. Event dispatcher and lifecycle engine
// 4. Application services
// 5. Workers and HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization",
		zap.String("driver", c.config.Database.Driver))

	if err := c.initStores(); err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}
	c.logger.Info("Offer store initialized")

	if err := c.initExternal(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized",
		zap.Bool("lark", c.messenger != nil),
		zap.Bool("metrics", c.metrics != nil))

	if err := c.initEngine(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	c.logger.Info("Dispatcher and lifecycle engine initialized")

	if err := c.initServices(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.server = ProvideHTTPServer(c.config, httpserver.Dependencies{
		Engine:  c.engine,
		Export:  c.services.Export,
		Tokens:  c.tokens,
		Metrics: c.metricsHandler(),
	}, c.logger)

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown stops workers before the engine so no sweep fires into a closed engine,
// and closes the database last.
func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	if c.engine != nil {
		if err := c.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.stores != nil && c.stores.SqlDB != nil {
		if err := c.stores.SqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.stores == nil:
		set("store", false, "not initialized")
	case c.stores.SqlDB != nil:
		if err := c.stores.SqlDB.Ping(); err != nil {
			set("store", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("store", true, c.config.Database.Driver)
		}
	default:
		set("store", true, c.config.Database.Driver)
	}

	if c.workers != nil {
		set("workers", c.workers.IsRunning() || !c.config.Sweeper.Enabled, "")
	} else {
		set("workers", false, "not initialized")
	}

	if c.dispatcher != nil {
		set("dispatcher", true, "")
	} else {
		set("dispatcher", false, "not initialized")
	}

	return status
}

func (c *Container) initStores() error {
	stores, err := ProvideStores(c.ctx, c.config, c.logger)
	if err != nil {
		return err
	}
	c.stores = stores
	return nil
}

func (c *Container) initExternal() error {
	c.messenger = ProvideMessenger(&c.config.Lark, c.logger.Named("lark"))
	c.metrics = ProvideMetrics(&c.config.Metrics)

	tokens, err := ProvideTokenManager(&c.config.Auth)
	if err != nil {
		return err
	}
	c.tokens = tokens
	return nil
}

func (c *Container) initEngine() error {
	disp, err := ProvideDispatcher(c.logger.Named("dispatcher"))
	if err != nil {
		return err
	}
	c.dispatcher = disp

	if c.metrics != nil {
		c.metrics.Recorder.Register(disp)
	}

	engine, err := ProvideEngine(&EngineDeps{
		Stores:     c.stores,
		Dispatcher: disp,
		Metrics:    c.metricsRecorder(),
		Lifecycle:  &c.config.Lifecycle,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(c.engine, c.messenger, c.dispatcher, &c.config.Lark, c.logger.Named("service"))
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(c.engine, &c.config.Sweeper, c.metricsRecorder(), c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// metricsRecorder keeps a disabled recorder as a nil interface rather than a typed nil
func (c *Container) metricsRecorder() port.MetricsRecorder {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Recorder
}

func (c *Container) metricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Handler
}

// Engine returns the lifecycle engine.
func (c *Container) Engine() workflow.LifecycleEngine {
	return c.engine
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Server returns the HTTP server. It is nil until Start succeeds.
func (c *Container) Server() *httpserver.Server {
	return c.server
}

// Tokens returns the JWT manager.
func (c *Container) Tokens() *auth.TokenManager {
	return c.tokens
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of the application layer.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
