// Package redis предоставляет общую реализацию клиента Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notesync/pkg/logger"
)

// Константы для логирования.
const (
	LogConnecting = "connecting to Redis"
	LogConnected  = "successfully connected to Redis"
	LogNoAOF      = "redis append-only file is disabled, queued operations will not survive a server restart"

	ErrConnect = "failed to connect to Redis"
	ErrClose   = "failed to close Redis connection"
)

// Client обертывает клиент Redis.
type Client struct {
	client *redis.Client
}

// NewClient создает клиент Redis и проверяет соединение.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	log := logger.Log(ctx).With(zap.String("redis_address", cfg.Address()))
	log.Info(ctx, LogConnecting)

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		log.Error(ctx, ErrConnect, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", ErrConnect, err)
	}

	checkDurability(pingCtx, log, rdb)

	log.Info(ctx, LogConnected)
	return &Client{client: rdb}, nil
}

// checkDurability предупреждает, если сервер не пишет AOF.
func checkDurability(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	values, err := rdb.ConfigGet(ctx, "appendonly").Result()
	if err != nil {
		log.Debug(ctx, "failed to read appendonly setting", zap.Error(err))
		return
	}
	if values["appendonly"] != "yes" {
		log.Warn(ctx, LogNoAOF, zap.String("appendonly", values["appendonly"]))
	}
}

// Close закрывает соединение с Redis.
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", ErrClose, err)
	}
	return nil
}

// RawClient возвращает базовый Redis клиент для более сложных операций.
func (c *Client) RawClient() *redis.Client {
	return c.client
}
