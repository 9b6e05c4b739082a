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

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/walletauth/internal/auth/events"
	httpapi "github.com/aussiebroadwan/walletauth/internal/auth/http"
	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/internal/auth/service"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/walletauth/pkg/cryptox"
	"github.com/aussiebroadwan/walletauth/pkg/ethx"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         *sqlite.Store
	redis      *redis.Client // nil unless a redis backend is configured
	keyManager *jwtx.KeyManager
	limiter    ratelimit.Limiter
	publisher  events.Publisher
	auditSub   message.Subscriber // in-memory events only

	// Services
	authService         *service.AuthenticationService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "walletauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		app.closeAll()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initBackends(); err != nil {
		app.closeAll()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		app.closeAll()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the router, mainly for in-process tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()
	if app.auditSub != nil {
		if err := app.startAuditLog(context.Background()); err != nil {
			app.logger.Warn("audit log subscriber not started", "error", err)
		}
	}

	app.logger.Info("walletauth starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"ratelimit_backend", app.cfg.RateLimitBackend,
		"events_backend", app.cfg.EventsBackend,
		"admin", app.cfg.AdminEnabled(),
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
			app.closeAll()
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
	app.logger.Info("shutting down walletauth...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	err := app.closeAll()
	app.logger.Info("walletauth stopped")
	return err
}

// closeAll releases backends in reverse order of creation.
func (app *Application) closeAll() error {
	var errs []error
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Error("error closing event publisher", "error", err)
			errs = append(errs, err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sqliteDSN enables WAL and a busy timeout through modernc's _pragma
// parameters.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	var opts []sqlite.Option
	if app.cfg.AdminEnabled() {
		opts = append(opts, sqlite.WithAdmin())
		app.logger.Warn("administrative operations enabled", "env", app.cfg.Env)
	}

	db, err := sqlite.NewStore(sqliteDSN(app.cfg.DatabaseFile), opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initBackends picks the rate limiter and event publisher.
func (app *Application) initBackends() error {
	if app.cfg.RateLimitBackend == BackendRedis || app.cfg.EventsBackend == BackendRedis {
		opts, err := redis.ParseURL(app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		app.redis = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.OpTimeout)
		defer cancel()
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
	}

	switch app.cfg.RateLimitBackend {
	case BackendRedis:
		app.limiter = ratelimit.NewRedisLimiter(app.redis, app.cfg.RateLimit, ratelimit.RedisOptions{
			Admin: app.cfg.AdminEnabled(),
		})
	default:
		app.limiter = ratelimit.NewStoreLimiter(app.db, nil, app.cfg.RateLimit)
	}

	switch app.cfg.EventsBackend {
	case BackendRedis:
		pub, err := events.NewRedisStream(app.redis, app.logger, events.DefaultTopic)
		if err != nil {
			return fmt.Errorf("failed to create redis stream publisher: %w", err)
		}
		app.publisher = pub
	default:
		pub, pubSub := events.NewMemory(app.logger, events.DefaultTopic)
		app.publisher = pub
		app.auditSub = pubSub
	}

	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	fingerprinter, err := cryptox.NewFingerprinter(pepper)
	if err != nil {
		return err
	}

	challenges := &service.ChallengeManager{
		Store:     app.db,
		Limiter:   app.limiter,
		Verifier:  ethx.PersonalSign{},
		Domain:    app.cfg.Domain,
		URI:       app.cfg.URI,
		Statement: app.cfg.Statement,
		TTL:       app.cfg.ChallengeTTL,
		OpTimeout: app.cfg.OpTimeout,
	}

	sessions := &service.SessionIssuer{
		KeyManager:    app.keyManager,
		Store:         app.db,
		Fingerprinter: fingerprinter,
		Events:        app.publisher,
		Issuer:        app.cfg.Issuer,
		AccessTTL:     app.cfg.AccessTTL,
		RefreshTTL:    app.cfg.RefreshTTL,
		DefaultRole:   app.cfg.DefaultRole,
		OpTimeout:     app.cfg.OpTimeout,
	}

	app.authService = &service.AuthenticationService{
		Challenges:   challenges,
		Sessions:     sessions,
		Limiter:      app.limiter,
		AdminEnabled: app.cfg.AdminEnabled(),
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.limiter,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	if app.cfg.ChallengeTTL > app.housekeepingService.Grace {
		app.housekeepingService.Grace = app.cfg.ChallengeTTL
	}
	return nil
}

// readiness pings every backend the request path depends on.
type readiness []store.Pinger

func (r readiness) Ping(ctx context.Context) error {
	for _, p := range r {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	checks := readiness{app.db}
	if app.redis != nil {
		checks = append(checks, redisPinger{app.redis})
	}

	router := httpapi.NewRouter(
		app.authService,
		app.keyManager.KeySet,
		BuildVersion,
		checks,
		app.logger,
	)
	if app.cfg.AdminEnabled() {
		router.AdminToken = app.cfg.AdminToken
	}
	router.TrustProxy = app.cfg.TrustProxy
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// startAuditLog logs every in-memory session event at info level.
func (app *Application) startAuditLog(ctx context.Context) error {
	msgs, err := app.auditSub.Subscribe(ctx, events.DefaultTopic)
	if err != nil {
		return err
	}

	logger := app.logger
	go func() {
		for msg := range msgs {
			e, err := events.Decode(msg)
			if err != nil {
				logger.Warn("undecodable auth event", "error", err)
				msg.Ack()
				continue
			}
			logger.Info("auth event",
				"type", e.Type,
				"address", e.Address,
				"session_id", e.SessionID,
			)
			msg.Ack()
		}
	}()
	return nil
}
