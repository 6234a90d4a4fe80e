package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	DynamoDB  DynamoDBConfig  `mapstructure:"dynamodb"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Lark      LarkConfig      `mapstructure:"lark"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, memory or dynamodb
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// DynamoDBConfig holds DynamoDB store configuration
type DynamoDBConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	OffersTable     string `mapstructure:"offers_table"`
	HistoryTable    string `mapstructure:"history_table"`
	RequestsTable   string `mapstructure:"requests_table"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// LifecycleConfig holds engine configuration
type LifecycleConfig struct {
	ManagerApprovalRequired bool          `mapstructure:"manager_approval_required"`
	StoreTimeout            time.Duration `mapstructure:"store_timeout"`
	RequestSyncTimeout      time.Duration `mapstructure:"request_sync_timeout"`
}

// SweeperConfig holds expiry sweeper configuration
type SweeperConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Schedule    string `mapstructure:"schedule"`
	BatchSize   int    `mapstructure:"batch_size"`
	Concurrency int    `mapstructure:"concurrency"`
	RunOnStart  bool   `mapstructure:"run_on_start"`
}

// AuthConfig holds JWT configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ManagerChatID string `mapstructure:"manager_chat_id"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// MetricsConfig holds Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/offers.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// DynamoDB defaults
	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("dynamodb.offers_table", "offers")
	v.SetDefault("dynamodb.history_table", "offer_history")
	v.SetDefault("dynamodb.requests_table", "offer_requests")

	// Lifecycle defaults
	v.SetDefault("lifecycle.manager_approval_required", false)
	v.SetDefault("lifecycle.store_timeout", 5*time.Second)
	v.SetDefault("lifecycle.request_sync_timeout", 10*time.Second)

	// Sweeper defaults
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@hourly")
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("sweeper.concurrency", 4)

	// Auth defaults
	v.SetDefault("auth.issuer", "offer-lifecycle")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	// Lark defaults
	v.SetDefault("lark.receive_id_type", "user_id")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// envBindings maps config keys to the environment variables that hold secrets and endpoints
var envBindings = map[string]string{
	"auth.jwt_secret":            "JWT_SECRET",
	"lark.app_id":                "LARK_APP_ID",
	"lark.app_secret":            "LARK_APP_SECRET",
	"dynamodb.endpoint":          "DYNAMODB_ENDPOINT",
	"dynamodb.region":            "AWS_REGION",
	"dynamodb.access_key_id":     "AWS_ACCESS_KEY_ID",
	"dynamodb.secret_access_key": "AWS_SECRET_ACCESS_KEY",
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("database.driver must be sqlite, memory or dynamodb, got %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	// Lark credentials only matter when notifications are on
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Sweeper.BatchSize < 0 || c.Sweeper.Concurrency < 0 {
		return fmt.Errorf("sweeper.batch_size and sweeper.concurrency must not be negative")
	}

	return nil
}
