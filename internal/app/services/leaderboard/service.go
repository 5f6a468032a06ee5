// Package leaderboard turns the raw record set into display-ready ranked
// boards: build on cache miss, cache for a bounded time, slice into pages.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/identity"
	domain "github.com/PlayPark-Labs/engagement_engine/internal/app/domain/leaderboard"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/metrics"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

const (
	// cacheTTL bounds how stale a served board may be. There is no explicit
	// invalidation on new writes.
	cacheTTL = 5 * time.Minute

	// buildWindow is the freshness filter: records older than this never
	// enter a board, regardless of their store TTL.
	buildWindow = 30 * 24 * time.Hour

	// MaxPageLimit caps how many entries one page request may ask for.
	MaxPageLimit = 100
)

// Scanner lists the raw records behind one board kind.
type Scanner interface {
	Scan(ctx context.Context, kind activity.Kind) ([]activity.Record, error)
}

// Resolver maps a session reference to its public identity.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (identity.Identity, error)
}

// Service builds, caches and pages the ranked boards.
type Service struct {
	scanner  Scanner
	resolver Resolver
	log      *logger.Logger
	cache    *cache
	feed     *Feed
	now      func() time.Time
	window   time.Duration
}

// New constructs a leaderboard service.
func New(scanner Scanner, resolver Resolver, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("leaderboard")
	}
	return &Service{
		scanner:  scanner,
		resolver: resolver,
		log:      log,
		cache:    newCache(cacheTTL, nil),
		now:      time.Now,
		window:   buildWindow,
	}
}

// WithClock overrides the service clock, including the cache's.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
		s.cache.setClock(now)
	}
	return s
}

// WithFeed attaches the live feed hub; every successful rebuild is broadcast
// to it.
func (s *Service) WithFeed(feed *Feed) *Service {
	s.feed = feed
	return s
}

// GetBoard returns one page of the board for kind. Page parameters are
// validated before the cache is consulted, so a bad request never triggers
// a build.
func (s *Service) GetBoard(ctx context.Context, kind activity.Kind, limit, offset int) (domain.Page, error) {
	if limit <= 0 {
		return domain.Page{}, fmt.Errorf("limit must be positive")
	}
	if offset < 0 {
		return domain.Page{}, fmt.Errorf("offset must not be negative")
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	return paginate(s.getOrBuild(ctx, kind), limit, offset), nil
}

// Refresh rebuilds the board for kind unconditionally, refreshing the cache
// and notifying the live feed. The background refresher drives this.
func (s *Service) Refresh(ctx context.Context, kind activity.Kind) []domain.Entry {
	return s.rebuild(ctx, kind)
}

func (s *Service) getOrBuild(ctx context.Context, kind activity.Kind) []domain.Entry {
	if entries, ok := s.cache.get(kind); ok {
		metrics.RecordCacheLookup(string(kind), true)
		return entries
	}
	metrics.RecordCacheLookup(string(kind), false)
	return s.rebuild(ctx, kind)
}

// rebuild runs a full build. A failed build serves and returns the empty
// board without touching the cache, so the next request retries instead of
// caching the outage for a TTL window.
func (s *Service) rebuild(ctx context.Context, kind activity.Kind) []domain.Entry {
	start := time.Now()
	entries, err := s.build(ctx, kind)
	metrics.RecordBoardBuild(string(kind), time.Since(start), err == nil)
	if err != nil {
		s.log.WithError(err).
			WithField("kind", string(kind)).
			Warn("board build failed; serving empty board")
		return nil
	}

	s.cache.put(kind, entries)
	if s.feed != nil {
		s.feed.Broadcast(kind, entries)
	}
	return entries
}

// paginate slices a built board. Ranks are global: an entry's rank is its
// position in the full board, not within the returned page.
func paginate(entries []domain.Entry, limit, offset int) domain.Page {
	total := len(entries)
	page := domain.Page{
		Entries:     []domain.Entry{},
		Total:       total,
		HasPrevious: offset > 0,
	}
	if offset >= total {
		return page
	}

	end := offset + limit
	if end > total {
		end = total
	}
	page.Entries = make([]domain.Entry, 0, end-offset)
	for i, entry := range entries[offset:end] {
		entry.Rank = offset + i + 1
		page.Entries = append(page.Entries, entry)
	}
	page.HasNext = end < total
	return page
}
