package config

import (
	"fmt"
	"time"

	redisdb "notesync/pkg/db/redis"
)

// Драйверы локального хранилища.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// StoreConfig выбирает локальное хранилище.
type StoreConfig struct {
	Driver    string        `yaml:"driver" env:"NOTESYNC_STORE_DRIVER" env-default:"redis"`
	OpTimeout time.Duration `yaml:"op_timeout" env:"NOTESYNC_STORE_OP_TIMEOUT" env-default:"3s"`
}

// PostgresConfig описывает подключение к PostgreSQL.
type PostgresConfig struct {
	Host     string `yaml:"host" env:"NOTESYNC_POSTGRES_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"NOTESYNC_POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"NOTESYNC_POSTGRES_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"NOTESYNC_POSTGRES_PASSWORD" env-default:"postgres"`
	Database string `yaml:"database" env:"NOTESYNC_POSTGRES_DB" env-default:"notesync"`
	SSLMode  string `yaml:"ssl_mode" env:"NOTESYNC_POSTGRES_SSL_MODE" env-default:"disable"`
	MinConn  int    `yaml:"min_conn" env:"NOTESYNC_POSTGRES_MIN_CONN" env-default:"1"`
	MaxConn  int    `yaml:"max_conn" env:"NOTESYNC_POSTGRES_MAX_CONN" env-default:"5"`
}

// GetDSN возвращает строку подключения.
func (c *PostgresConfig) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig описывает подключение к Redis.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"NOTESYNC_REDIS_HOST" env-default:"localhost"`
	Port     int           `yaml:"port" env:"NOTESYNC_REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"password" env:"NOTESYNC_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"NOTESYNC_REDIS_DB" env-default:"0"`
	PoolSize int           `yaml:"pool_size" env:"NOTESYNC_REDIS_POOL_SIZE" env-default:"10"`
	Timeout  time.Duration `yaml:"timeout" env:"NOTESYNC_REDIS_TIMEOUT" env-default:"5s"`
	Prefix   string        `yaml:"prefix" env:"NOTESYNC_REDIS_PREFIX" env-default:"notesync"`
}

// GetClientConfig преобразует настройки в конфигурацию клиента Redis.
func (c *RedisConfig) GetClientConfig() *redisdb.Config {
	return &redisdb.Config{
		Host:     c.Host,
		Port:     c.Port,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
		Timeout:  c.Timeout,
	}
}
