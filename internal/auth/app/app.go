package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/tokend/internal/auth/http"
	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/tokend/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokend/internal/auth/telemetry"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the token server with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         *sqlite.Store
	codes      *redis.CodeStore // nil unless AUTH_REDIS_ADDR is set
	store      store.Store
	keyManager *jwtx.KeyManager
	telemetry  *telemetry.Telemetry

	services            *service.Services
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application with all dependencies initialized. The
// seed is applied on every start; existing records are kept.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg:    cfg,
		logger: NewLogger(cfg),
	}

	if err := cryptox.LoadPepper(cfg.PepperFile); err != nil {
		return nil, fmt.Errorf("load pepper: %w", err)
	}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(cfg, app.logger)
	if err != nil {
		app.closeStore()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	tel, err := telemetry.New(telemetry.Config{ServiceName: "tokend", Enabled: cfg.MetricsEnabled})
	if err != nil {
		app.closeStore()
		return nil, err
	}
	app.telemetry = tel

	app.initServices()

	if err := app.seed(slogx.WithContext(ctx, app.logger)); err != nil {
		app.closeStore()
		return nil, err
	}

	app.initHTTP()
	return app, nil
}

// NewLogger builds the process logger from the config.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "tokend",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// Handler exposes the routed handler, for tests and embedding.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("tokend starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"issuer", app.cfg.Issuer,
		"redis_codes", app.codes != nil,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.closeStore()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tokend...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.telemetry.Shutdown(ctx); err != nil {
		app.logger.Error("error shutting down telemetry", "error", err)
	}

	if err := app.closeStore(); err != nil {
		return err
	}

	app.logger.Info("tokend stopped")
	return nil
}

// Close releases the store and telemetry of an application that was never
// Run, such as one whose Handler is served by httptest.
func (app *Application) Close() error {
	if err := app.telemetry.Shutdown(context.Background()); err != nil {
		app.logger.Error("error shutting down telemetry", "error", err)
	}
	return app.closeStore()
}

// OpenDatabase opens the sqlite database and applies migrations.
func OpenDatabase(cfg Config, logger *slog.Logger) (*sqlite.Store, error) {
	db, err := sqlite.NewStore(sqlite.DSN(cfg.DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Info("database migrations applied successfully", "file", cfg.DatabaseFile)
	return db, nil
}

func (app *Application) initStore(ctx context.Context) error {
	db, err := OpenDatabase(app.cfg, app.logger)
	if err != nil {
		return err
	}
	app.db = db
	app.store = db

	if app.cfg.RedisAddr == "" {
		return nil
	}

	codes, err := redis.New(ctx, app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB)
	if err != nil {
		_ = db.Close()
		return err
	}
	app.codes = codes
	app.store = store.WithAuthorizationCodes(db, codes)
	app.logger.Info("authorization codes stored in redis", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) closeStore() error {
	var errs error
	if app.codes != nil {
		errs = errors.Join(errs, app.codes.Close())
	}
	if app.db != nil {
		errs = errors.Join(errs, app.db.Close())
	}
	if errs != nil {
		app.logger.Error("error closing store", "error", errs)
	}
	return errs
}

func (app *Application) initServices() {
	app.services = service.New(app.store, app.keyManager, app.telemetry, service.Config{
		Issuer:            app.cfg.Issuer,
		AccessTokenTTL:    app.cfg.AccessTokenTTL,
		IdentityTokenTTL:  app.cfg.IdentityTokenTTL,
		RefreshTokenTTL:   app.cfg.RefreshTokenTTL,
		CodeTTL:           app.cfg.CodeTTL,
		MaxFailedAttempts: app.cfg.MaxFailedAttempts,
		LockoutDuration:   app.cfg.LockoutDuration,
		CacheTTL:          app.cfg.CacheTTL,
	})

	app.housekeepingService = service.NewHousekeepingService(
		app.store,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) seed(ctx context.Context) error {
	seed := DefaultSeed()
	if app.cfg.SeedFile != "" {
		var err error
		if seed, err = LoadSeed(app.cfg.SeedFile); err != nil {
			return err
		}
	}
	return ApplySeed(ctx, app.services, seed)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		app.cfg.Issuer,
		BuildVersion,
		app.store,
		app.services,
		app.telemetry,
		app.logger,
	)
	router.ResourceAudience = app.cfg.ResourceAudience
	if app.codes != nil {
		router.Redis = app.codes
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
