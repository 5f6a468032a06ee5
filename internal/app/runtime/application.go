package runtime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/PlayPark-Labs/engagement_engine/internal/app"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/httpapi"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/metrics"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage/postgres"
	redisstore "github.com/PlayPark-Labs/engagement_engine/internal/app/storage/redis"
	"github.com/PlayPark-Labs/engagement_engine/internal/config"
	"github.com/PlayPark-Labs/engagement_engine/internal/middleware"
	"github.com/PlayPark-Labs/engagement_engine/internal/platform/migrations"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	engine     *app.Application
	httpServer *http.Server
	redis      *goredis.Client
	db         *sqlx.DB
}

// NewApplication constructs a new application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}
	log := logger.New(logCfg)

	stores, redisClient, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	engine, err := app.New(app.Config{
		IdentityPepper:    cfg.Engine.IdentityPepper,
		MaxAttemptsPerDay: cfg.Engine.MaxAttemptsPerDay,
		GameLimits:        cfg.Engine.Game,
		RefreshSchedule:   cfg.Engine.RefreshSchedule,
		RefresherEnabled:  cfg.Engine.RefresherEnabled,
	}, stores, log)
	if err != nil {
		closeStores(redisClient, db, log)
		return nil, fmt.Errorf("wire engine: %w", err)
	}

	var handler http.Handler = httpapi.NewHandler(engine, log)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		if err := engine.Attach(limiter); err != nil {
			closeStores(redisClient, db, log)
			return nil, fmt.Errorf("attach rate limiter: %w", err)
		}
		handler = limiter.Handler(handler)
	}
	handler = middleware.NewCORS(cfg.CORS.AllowedOrigins).Handler(handler)
	handler = middleware.NewRequestLog(log).Handler(handler)
	handler = metrics.InstrumentHandler(handler)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		httpServer: httpSrv,
		redis:      redisClient,
		db:         db,
	}, nil
}

// Run seeds demo content, starts background services and the HTTP server,
// then blocks until the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := a.engine.Seeder.Seed(seedCtx); err != nil {
		cancel()
		return fmt.Errorf("seed demo content: %w", err)
	}
	cancel()

	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		a.log.Infof("HTTP server listening on %s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server and background services.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := a.engine.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping background services")
	}

	closeStores(a.redis, a.db, a.log)

	return nil
}

// buildStores opens the configured backing stores. Both are optional: with
// no Redis address the engine keeps records in process memory, and with no
// database driver the analytics archive does the same. Configured stores
// that cannot be reached fail startup rather than silently degrading.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *goredis.Client, *sqlx.DB, error) {
	var stores app.Stores
	var redisClient *goredis.Client

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = redisClient.Close()
			return app.Stores{}, nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
		}
		stores.KV = redisstore.New(redisClient)
	} else {
		log.Warn("REDIS_ADDR not set; using in-memory record store")
	}

	if cfg.Database.Driver == "" {
		log.Warn("database not configured; analytics archive kept in memory")
		return stores, redisClient, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		closeStores(redisClient, nil, log)
		return app.Stores{}, nil, nil, err
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrations.Apply(migrateCtx, db.DB); err != nil {
		closeStores(redisClient, db, log)
		return app.Stores{}, nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	stores.Analytics = postgres.New(db)

	return stores, redisClient, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func closeStores(redisClient *goredis.Client, db *sqlx.DB, log *logger.Logger) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("error closing redis connection")
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("error closing database connection")
		}
	}
}
