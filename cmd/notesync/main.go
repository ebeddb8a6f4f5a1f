package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"notesync/internal/offline/adapters/grpc/notes"
	offlinehttp "notesync/internal/offline/adapters/http"
	pgstore "notesync/internal/offline/adapters/postgres"
	redisstore "notesync/internal/offline/adapters/redis"
	"notesync/internal/offline/adapters/rest"
	"notesync/internal/offline/adapters/session"
	"notesync/internal/offline/app"
	"notesync/internal/offline/config"
	"notesync/internal/offline/connectivity"
	"notesync/internal/offline/notify"
	"notesync/internal/offline/ports/remote"
	"notesync/internal/offline/ports/repositories"
	"notesync/migrations/offline"
	"notesync/pkg/db/postgres"
	redisdb "notesync/pkg/db/redis"
	"notesync/pkg/logger"
	"notesync/pkg/shutdown"
)

// Константы для переменных окружения.
const (
	EnvLoggerMode  = "NOTESYNC_LOGGER_MODE"
	EnvLoggerLevel = "NOTESYNC_LOGGER_LEVEL"
)

// Константы для сообщений об ошибках.
const (
	ErrInitLogger           = "failed to initialize logger"
	ErrSyncLogger           = "failed to sync logger"
	ErrLoadConfig           = "failed to load configuration"
	ErrInitLoggerWithConfig = "failed to initialize logger with configuration settings"
	ErrOpenStore            = "failed to open local store"
	ErrCreateRemoteClient   = "failed to create remote note client"
	ErrStartEngine          = "failed to start sync engine"
	ErrStartHTTPServer      = "failed to start HTTP server"
)

// Константы для игнорируемых ошибок.
const (
	ErrSyncStderr = "sync /dev/stderr: invalid argument"
	ErrSyncStdout = "sync /dev/stdout: invalid argument"
)

// Константы для сообщений сервиса.
const (
	LogServiceStarted      = "notesync agent started"
	LogServiceShutdownDone = "notesync agent shutdown complete"
	LogOpeningStore        = "opening local store"
	LogInitRemote          = "initializing remote note client"
	LogInitServices        = "initializing services"
	LogInitHTTPServer      = "initializing HTTP server"
	LogStartingHTTP        = "starting HTTP server"
	LogStoppingHTTP        = "stopping HTTP server"
)

func main() {
	env := logger.Development
	if strings.ToLower(os.Getenv(EnvLoggerMode)) == "production" {
		env = logger.Production
	}

	log, err := logger.NewLogger(env, os.Getenv(EnvLoggerLevel))
	if err != nil {
		panic(ErrInitLogger + ": " + err.Error())
	}

	logger.SetGlobalLogger(log)

	ctx := logger.NewRequestIDContext(context.Background(), "")

	var exitCode int

	func() {
		defer func() {
			if err := log.Sync(); err != nil {
				errMsg := err.Error()
				if strings.Contains(errMsg, ErrSyncStderr) || strings.Contains(errMsg, ErrSyncStdout) {
					return
				}
				if _, writeErr := fmt.Fprintf(os.Stderr, "%s: %v\n", ErrSyncLogger, err); writeErr != nil {
					panic(writeErr)
				}
			}
		}()

		cfg, err := config.Load(ctx)
		if err != nil {
			log.Error(ctx, ErrLoadConfig, zap.Error(err))
			exitCode = 1
			return
		}

		finalLogger, err := logger.NewLogger(cfg.Logging.GetEnvironment(), cfg.Logging.Level,
			logger.WithFile(cfg.Logging.GetFileConfig()))
		if err != nil {
			log.Error(ctx, ErrInitLoggerWithConfig, zap.Error(err))
			exitCode = 1
			return
		}
		logger.SetGlobalLogger(finalLogger)
		log = finalLogger

		log.Info(ctx, LogServiceStarted,
			zap.String("environment", string(cfg.Logging.GetEnvironment())),
			zap.String("log_level", cfg.Logging.Level),
			zap.String("startup_time", time.Now().Format(time.RFC3339)))

		log.Info(ctx, LogOpeningStore, zap.String("driver", cfg.Store.Driver))
		store, err := openStore(ctx, cfg)
		if err != nil {
			log.Error(ctx, ErrOpenStore, zap.Error(err))
			exitCode = 1
			return
		}

		log.Info(ctx, LogInitRemote, zap.String("transport", cfg.Remote.Transport))
		tokens := session.NewTokenSource(cfg.Remote.Token)
		api, err := openRemote(cfg, tokens)
		if err != nil {
			log.Error(ctx, ErrCreateRemoteClient, zap.Error(err))
			_ = store.Close(ctx)
			exitCode = 1
			return
		}

		log.Info(ctx, LogInitServices)
		monitor := connectivity.NewMonitor(cfg.Sync.StartOnline)
		hub := notify.NewHub(cfg.Sync.NotificationBuffer)
		engine := app.NewSyncEngine(store, api, monitor, hub)
		noteService := app.NewNoteService(store, api, monitor, engine)

		log.Info(ctx, LogInitHTTPServer)
		server := fiber.New(fiber.Config{
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		})
		offlinehttp.SetupRouter(server, offlinehttp.Dependencies{
			Notes:   noteService,
			Sync:    engine,
			Conn:    monitor,
			Feed:    hub,
			Session: tokens,
		})

		if err := engine.Start(ctx); err != nil {
			log.Error(ctx, ErrStartEngine, zap.Error(err))
			_ = api.Close()
			_ = store.Close(ctx)
			exitCode = 1
			return
		}

		log.Info(ctx, LogStartingHTTP, zap.String("address", cfg.HTTP.GetAddress()))
		go func() {
			if err := server.Listen(cfg.HTTP.GetAddress()); err != nil {
				log.Error(ctx, ErrStartHTTPServer, zap.Error(err))
			}
		}()

		shutdown.Wait(ctx, cfg.Shutdown.GetTimeout(),
			func(ctx context.Context) error {
				log.Info(ctx, LogStoppingHTTP)
				httpErr := server.ShutdownWithContext(ctx)

				log.Info(ctx, "Stopping sync engine")
				engineErr := engine.Stop(ctx)

				log.Info(ctx, "Closing remote client")
				apiErr := api.Close()

				log.Info(ctx, "Closing local store")
				storeErr := store.Close(ctx)

				return errors.Join(httpErr, engineErr, apiErr, storeErr)
			},
		)

		log.Info(ctx, LogServiceShutdownDone)
	}()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// openStore открывает выбранное локальное хранилище. Для PostgreSQL предварительно применяются миграции.
func openStore(ctx context.Context, cfg *config.Config) (repositories.LocalStore, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, postgres.Config{
			DSN:     cfg.Postgres.GetDSN(),
			MinConn: cfg.Postgres.MinConn,
			MaxConn: cfg.Postgres.MaxConn,
		}, offline.FS, ".")
		if err != nil {
			return nil, err
		}
		return pgstore.NewStore(pool, cfg.Store.OpTimeout), nil
	case config.DriverRedis:
		client, err := redisdb.NewClient(ctx, cfg.Redis.GetClientConfig())
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(client.RawClient(), redisstore.Options{
			Prefix:    cfg.Redis.Prefix,
			OpTimeout: cfg.Store.OpTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Store.Driver)
	}
}

// openRemote создает клиент удаленного API для выбранного транспорта.
func openRemote(cfg *config.Config, creds remote.CredentialSource) (remote.NoteAPI, error) {
	switch cfg.Remote.Transport {
	case config.TransportGRPC:
		client, err := notes.NewClient(cfg.Remote.GRPCAddress, creds, notes.WithCallTimeout(cfg.Remote.Timeout))
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.TransportREST:
		client, err := rest.NewClient(rest.Config{BaseURL: cfg.Remote.BaseURL, Timeout: cfg.Remote.Timeout}, creds)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownTransport, cfg.Remote.Transport)
	}
}
