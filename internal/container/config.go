// Package container provides dependency injection and lifecycle management
// for the offer lifecycle service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/application/workflow"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/dynamodb"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/worker"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverDynamoDB = "dynamodb"
)

// Config holds all configuration for the Container.
type Config struct {
	Database  DatabaseConfig
	DynamoDB  DynamoDBConfig
	Lifecycle LifecycleConfig
	Sweeper   SweeperConfig
	Auth      AuthConfig
	Lark      LarkConfig
	Metrics   MetricsConfig
	Server    ServerConfig
}

// DatabaseConfig selects the offer store and holds SQLite connection settings.
type DatabaseConfig struct {
	// Driver is one of sqlite, memory or dynamodb
	Driver string

	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// DynamoDBConfig holds settings for the dynamodb driver.
type DynamoDBConfig struct {
	Region          string
	Endpoint        string
	OffersTable     string
	HistoryTable    string
	RequestsTable   string
	AccessKeyID     string
	SecretAccessKey string
}

// LifecycleConfig tunes the engine.
type LifecycleConfig struct {
	ManagerApprovalRequired bool
	StoreTimeout            time.Duration
	RequestSyncTimeout      time.Duration
}

// SweeperConfig tunes the expiry sweeper.
type SweeperConfig struct {
	Enabled     bool
	Schedule    string
	BatchSize   int
	Concurrency int
	RunOnStart  bool
}

// AuthConfig holds the JWT settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// LarkConfig holds Lark messaging settings.
type LarkConfig struct {
	Enabled       bool
	AppID         string
	AppSecret     string
	ManagerChatID string
	ReceiveIDType string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/offers.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		DynamoDB: DynamoDBConfig{
			Region:        dynamodb.DefaultRegion,
			OffersTable:   dynamodb.DefaultOffersTable,
			HistoryTable:  dynamodb.DefaultHistoryTable,
			RequestsTable: dynamodb.DefaultRequestsTable,
		},
		Lifecycle: LifecycleConfig{
			StoreTimeout:       workflow.DefaultStoreTimeout,
			RequestSyncTimeout: workflow.DefaultRequestSyncTimeout,
		},
		Sweeper: SweeperConfig{
			Enabled:     true,
			Schedule:    worker.DefaultSweepSchedule,
			BatchSize:   worker.DefaultSweepBatchSize,
			Concurrency: worker.DefaultSweepConcurrency,
		},
		Auth: AuthConfig{
			Issuer:   "offer-lifecycle",
			TokenTTL: 24 * time.Hour,
		},
		Lark: LarkConfig{
			ReceiveIDType: port.ReceiveIDTypeUserID,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMemory:
	case DriverDynamoDB:
		if c.DynamoDB.OffersTable == "" || c.DynamoDB.HistoryTable == "" {
			return fmt.Errorf("dynamodb offers and history tables are required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Sweeper.Enabled && c.Sweeper.Schedule == "" {
		return fmt.Errorf("sweeper.schedule is required")
	}

	return nil
}
