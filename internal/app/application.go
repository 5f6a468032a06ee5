package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/game"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/identity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/leaderboard"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/quota"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/services/seed"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage/memory"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/system"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	KV        storage.KeyValueStore
	Analytics storage.AnalyticsStore
}

// Config carries engine tunables the caller resolves from configuration.
// Zero values fall back to package defaults.
type Config struct {
	IdentityPepper    string
	MaxAttemptsPerDay int64
	GameLimits        game.Limits
	RefreshSchedule   string
	RefresherEnabled  bool
	SeedDocuments     []seed.Document
}

// Normalize fills defaults and trims whitespace.
func (c *Config) Normalize() {
	c.IdentityPepper = strings.TrimSpace(c.IdentityPepper)
	c.RefreshSchedule = strings.TrimSpace(c.RefreshSchedule)
	if c.RefreshSchedule == "" {
		c.RefreshSchedule = leaderboard.DefaultRefreshSchedule
	}
}

// Application ties the engine services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	KV         storage.KeyValueStore
	Analytics  storage.AnalyticsStore
	Identities *identity.Service
	Quota      *quota.Service
	Games      *game.Service
	Activities *activity.Service
	Boards     *leaderboard.Service
	Feed       *leaderboard.Feed
	Seeder     *seed.Service
}

// New builds a fully initialised application with the provided stores.
func New(cfg Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	cfg.Normalize()

	mem := memory.New()
	if stores.KV == nil {
		stores.KV = mem
	}
	if stores.Analytics == nil {
		stores.Analytics = mem
	}

	manager := system.NewManager()

	identityService := identity.New(stores.KV, cfg.IdentityPepper, log)
	quotaService := quota.New(stores.KV, log)
	if cfg.MaxAttemptsPerDay > 0 {
		quotaService.WithMaxPerDay(cfg.MaxAttemptsPerDay)
	}
	gameService := game.New(cfg.GameLimits, log)
	activityService := activity.New(stores.KV, stores.Analytics, log).WithResolver(identityService)
	feed := leaderboard.NewFeed(log)
	boardService := leaderboard.New(activityService, identityService, log).WithFeed(feed)
	seeder := seed.New(stores.KV, cfg.SeedDocuments, log)

	for _, name := range []string{"identity", "quota", "activity"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	if cfg.RefresherEnabled {
		refresher := leaderboard.NewRefresher(boardService, cfg.RefreshSchedule, log)
		if err := manager.Register(refresher); err != nil {
			return nil, fmt.Errorf("register %s: %w", refresher.Name(), err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		KV:         stores.KV,
		Analytics:  stores.Analytics,
		Identities: identityService,
		Quota:      quotaService,
		Games:      gameService,
		Activities: activityService,
		Boards:     boardService,
		Feed:       feed,
		Seeder:     seeder,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
