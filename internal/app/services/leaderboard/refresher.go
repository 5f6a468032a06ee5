package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/system"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// DefaultRefreshSchedule rebuilds every board often enough that the cache
// rarely goes cold between page requests.
const DefaultRefreshSchedule = "@every 2m"

// tickTimeout bounds one full refresh pass across all kinds.
const tickTimeout = 15 * time.Second

var _ system.Service = (*Refresher)(nil)

// Refresher rebuilds every board on a cron schedule, keeping the cache warm
// and the live feed moving without waiting for page requests.
type Refresher struct {
	service  *Service
	log      *logger.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRefresher creates a lifecycle-managed board refresher. An empty
// schedule falls back to DefaultRefreshSchedule.
func NewRefresher(service *Service, schedule string, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("board-refresher")
	}
	if strings.TrimSpace(schedule) == "" {
		schedule = DefaultRefreshSchedule
	}
	return &Refresher{
		service:  service,
		log:      log,
		schedule: schedule,
	}
}

func (r *Refresher) Name() string { return "board-refresher" }

func (r *Refresher) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.tick() }); err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.running = true

	r.log.WithField("schedule", r.schedule).Info("board refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c := r.cron
	r.cron = nil
	r.running = false
	r.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("board refresher stopped")
	return nil
}

func (r *Refresher) tick() {
	if r.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	for _, kind := range activity.Kinds() {
		r.service.Refresh(ctx, kind)
	}
}
