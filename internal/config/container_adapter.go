package config

import (
	"github.com/garyjia/offer-lifecycle/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This bridges the file-based config loaded by viper and the container's
// configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		DynamoDB: container.DynamoDBConfig{
			Region:          c.DynamoDB.Region,
			Endpoint:        c.DynamoDB.Endpoint,
			OffersTable:     c.DynamoDB.OffersTable,
			HistoryTable:    c.DynamoDB.HistoryTable,
			RequestsTable:   c.DynamoDB.RequestsTable,
			AccessKeyID:     c.DynamoDB.AccessKeyID,
			SecretAccessKey: c.DynamoDB.SecretAccessKey,
		},
		Lifecycle: container.LifecycleConfig{
			ManagerApprovalRequired: c.Lifecycle.ManagerApprovalRequired,
			StoreTimeout:            c.Lifecycle.StoreTimeout,
			RequestSyncTimeout:      c.Lifecycle.RequestSyncTimeout,
		},
		Sweeper: container.SweeperConfig{
			Enabled:     c.Sweeper.Enabled,
			Schedule:    c.Sweeper.Schedule,
			BatchSize:   c.Sweeper.BatchSize,
			Concurrency: c.Sweeper.Concurrency,
			RunOnStart:  c.Sweeper.RunOnStart,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
			TokenTTL:  c.Auth.TokenTTL,
		},
		Lark: container.LarkConfig{
			Enabled:       c.Lark.Enabled,
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			ManagerChatID: c.Lark.ManagerChatID,
			ReceiveIDType: c.Lark.ReceiveIDType,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
