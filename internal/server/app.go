// Package server wires configuration, storage backends, the auth provider,
// and the HTTP surface into a runnable application, and owns graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/idgate/internal/cryptox"
	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/server/config"
	"github.com/dmitrijs2005/idgate/internal/server/httpapi"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/idgate/internal/server/services"
)

const startupTimeout = 30 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	dispatcher *services.Dispatcher
	server     *httpapi.Server
}

// NewApp opens the database, applies migrations, and builds every component
// selected by c. c must already be validated.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	key, err := cryptox.ParseKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db}

	if err := app.build(ctx, key); err != nil {
		app.close(context.Background())
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context, key []byte) error {
	c := app.config

	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return err
	}

	var rdb *redis.Client
	if c.SessionStore == config.StoreRedis {
		rdb = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		app.redis = rdb
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	sessionStore, err := buildSessionStore(c, rm, app.db, rdb)
	if err != nil {
		return err
	}
	credentialStore, err := buildCredentialStore(ctx, c, rm, app.db)
	if err != nil {
		return err
	}
	prov, err := buildProvider(c, rm, app.db)
	if err != nil {
		return err
	}

	localMirror := services.NewLocalMirror(credentialStore, key)
	app.dispatcher, err = buildDispatcher(c, localMirror, app.logger.With("module", "mirror"))
	if err != nil {
		return err
	}

	auth := services.NewAuthService(
		app.db, rm, prov,
		services.NewAllocator(rm.Accounts(app.db), app.logger.With("module", "allocator")),
		services.NewCorrelator(sessionStore, c.StoreTimeout, app.logger.With("module", "sessions")),
		app.dispatcher,
		c.StoreTimeout,
		app.logger.With("module", "auth"),
	)
	credentials := services.NewCredentialService(localMirror, c.StoreTimeout, app.logger.With("module", "credentials"))

	app.server = httpapi.NewServer(c.HTTPAddr, app.logger, auth, credentials)

	app.logger.Info(ctx, "components ready",
		"auth_provider", c.AuthProvider,
		"mirror_mode", c.MirrorMode,
		"session_store", c.SessionStore,
		"credential_store", c.CredentialStore,
	)
	return nil
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// drains the mirror queue and releases connections.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	err := app.server.Run(ctx)
	app.close(ctx)

	app.logger.Info(ctx, "App stopped")
	return err
}

func (app *App) close(ctx context.Context) {
	app.dispatcher.Close()
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(ctx, "db close", "error", err)
		}
	}
}
