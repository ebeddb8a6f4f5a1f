// Package config содержит конфигурацию клиента синхронизации.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	pkgconfig "notesync/pkg/config"
	"notesync/pkg/logger"
)

// ServiceName - имя сервиса в журналах.
const ServiceName = "notesync"

// EnvConfigPath указывает на необязательный файл конфигурации.
const EnvConfigPath = "NOTESYNC_CONFIG_PATH"

// Ошибки проверки конфигурации.
var (
	ErrUnknownTransport = errors.New("unknown remote transport")
	ErrUnknownDriver    = errors.New("unknown store driver")
	ErrMissingEndpoint  = errors.New("remote endpoint is not configured")
)

// Config представляет полную конфигурацию клиента.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Remote   RemoteConfig   `yaml:"remote"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// Load загружает конфигурацию из окружения и файла NOTESYNC_CONFIG_PATH, если он задан.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := pkgconfig.Load[Config](ctx, ServiceName, os.Getenv(EnvConfigPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Log(ctx).Info(ctx, "notesync configuration",
		zap.String("http_address", cfg.HTTP.GetAddress()),
		zap.String("remote_transport", cfg.Remote.Transport),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("start_online", cfg.Sync.StartOnline),
		zap.String("log_level", cfg.Logging.Level),
		zap.Int("shutdown_timeout_seconds", cfg.Shutdown.Timeout))

	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Remote.Transport {
	case TransportREST:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("%w: %s", ErrMissingEndpoint, "base url")
		}
	case TransportGRPC:
		if c.Remote.GRPCAddress == "" {
			return fmt.Errorf("%w: %s", ErrMissingEndpoint, "grpc address")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Remote.Transport)
	}

	switch c.Store.Driver {
	case DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver)
	}

	return nil
}

// GetEnvironment возвращает режим работы логгера.
func (c *LoggingConfig) GetEnvironment() logger.Environment {
	if c.Mode == "development" {
		return logger.Development
	}
	return logger.Production
}
