// Package postgres подключает локальное хранилище к PostgreSQL и применяет миграции.
package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notesync/pkg/logger"
)

// Константы для сообщений logger.
const (
	LogConnecting = "connecting to Postgres database"
	LogConnected  = "successfully connected to Postgres"
)

// Константы для сообщений об ошибках.
const (
	ErrParseConfig  = "failed to parse connection config"
	ErrCreatePool   = "failed to create connection pool"
	ErrPingDatabase = "failed to ping database"
)

// DefaultConnectTimeout ограничивает первое подключение, если в Config не задано иное.
const DefaultConnectTimeout = 10 * time.Second

// Config описывает пул соединений.
type Config struct {
	DSN            string
	MinConn        int
	MaxConn        int
	ConnectTimeout time.Duration
}

// Open применяет миграции из fsys/dir и открывает пул.
func Open(ctx context.Context, cfg Config, fsys fs.FS, dir string) (*pgxpool.Pool, error) {
	if err := Migrate(ctx, cfg.DSN, fsys, dir); err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New открывает пул и проверяет соединение.
func New(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Log(ctx).Error(ctx, ErrParseConfig, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", ErrParseConfig, err)
	}

	log := logger.Log(ctx).With(
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database))
	log.Info(ctx, LogConnecting)

	if cfg.MinConn > 0 {
		poolCfg.MinConns = int32(cfg.MinConn)
	}
	if cfg.MaxConn > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConn)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		log.Error(ctx, ErrCreatePool, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", ErrCreatePool, err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		log.Error(ctx, ErrPingDatabase, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", ErrPingDatabase, err)
	}

	log.Info(ctx, LogConnected,
		zap.Int32("min_conns", poolCfg.MinConns),
		zap.Int32("max_conns", poolCfg.MaxConns))
	return pool, nil
}
