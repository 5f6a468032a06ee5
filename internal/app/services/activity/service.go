// Package activity owns the raw record set: the write path that persists
// completed actions and the scanner that reads them back for aggregation.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/identity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/metrics"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// ErrStoreFailed marks a primary write that did not reach the record store.
// Callers use it to tell a store outage apart from a rejected payload.
var ErrStoreFailed = errors.New("record store write failed")

const (
	// recordTTL is how long a raw record survives in the store. It is
	// deliberately longer than the aggregation window so boards never lose
	// history to expiry before the window filter drops it.
	recordTTL = 90 * 24 * time.Hour

	// maxClockSkew bounds how far in the future a caller-supplied
	// occurred_at may sit before the write is rejected.
	maxClockSkew = 5 * time.Minute
)

// Resolver maps a session reference to its public identity. The recorder uses
// it so the archive carries the same display token the boards show.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (identity.Identity, error)
}

// Service records new activity and scans the stored record set.
type Service struct {
	kv        storage.KeyValueStore
	analytics storage.AnalyticsStore
	resolver  Resolver
	log       *logger.Logger
	now       func() time.Time
}

// New constructs an activity service. analytics may be nil when no archive
// is wired; the side-channel is then skipped entirely.
func New(kv storage.KeyValueStore, analytics storage.AnalyticsStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("activity")
	}
	return &Service{
		kv:        kv,
		analytics: analytics,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithResolver wires the identity resolver used to derive archive tokens.
// Without one, archived events fall back to masking the raw reference.
func (s *Service) WithResolver(resolver Resolver) *Service {
	s.resolver = resolver
	return s
}

func recordKey(kind domain.Kind, id string) string {
	return string(kind) + ":v2:" + id
}

func indexKey(kind domain.Kind) string {
	return "board:index:" + string(kind)
}

// Record validates and persists one completed action. The primary write is
// the record itself; the board index and the analytics archive are
// side-channels that log and continue on failure.
func (s *Service) Record(ctx context.Context, rec domain.Record) (domain.Record, error) {
	rec.IdentityRef = strings.TrimSpace(rec.IdentityRef)
	rec.Label = strings.TrimSpace(rec.Label)

	kind, err := domain.ParseKind(string(rec.Kind))
	if err != nil {
		return domain.Record{}, err
	}
	rec.Kind = kind

	now := s.now()
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = now
	}
	if rec.OccurredAt.After(now.Add(maxClockSkew)) {
		return domain.Record{}, fmt.Errorf("occurred_at is in the future")
	}
	rec.OccurredAt = rec.OccurredAt.UTC()
	if err := rec.Validate(); err != nil {
		return domain.Record{}, err
	}

	rec.ID = uuid.NewString()
	payload, err := json.Marshal(rec)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode activity record: %w", err)
	}

	key := recordKey(rec.Kind, rec.ID)
	if err := s.kv.Set(ctx, key, string(payload), recordTTL); err != nil {
		return domain.Record{}, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	s.indexRecord(ctx, rec)
	s.archiveRecord(ctx, rec)
	metrics.RecordActivity(string(rec.Kind))

	s.log.WithField("kind", string(rec.Kind)).
		WithField("id", rec.ID).
		WithField("value", rec.Value).
		Info("recorded activity")
	return rec, nil
}

func (s *Service) indexRecord(ctx context.Context, rec domain.Record) {
	member := storage.ZMember{Member: rec.ID, Score: float64(rec.Value)}
	if err := s.kv.ZAdd(ctx, indexKey(rec.Kind), member); err != nil {
		s.log.WithError(err).
			WithField("kind", string(rec.Kind)).
			Warn("board index update failed")
	}
}

func (s *Service) archiveRecord(ctx context.Context, rec domain.Record) {
	if s.analytics == nil {
		return
	}
	token := identity.MaskToken(rec.IdentityRef)
	if s.resolver != nil {
		if ident, err := s.resolver.Resolve(ctx, rec.IdentityRef); err == nil {
			token = ident.DisplayToken
		}
	}
	event := storage.AnalyticsEvent{
		ID:            rec.ID,
		Kind:          string(rec.Kind),
		IdentityToken: token,
		Value:         rec.Value,
		Label:         rec.Label,
		OccurredAt:    rec.OccurredAt,
		RecordedAt:    s.now().UTC(),
	}
	if err := s.analytics.InsertEvent(ctx, event); err != nil {
		s.log.WithError(err).
			WithField("kind", string(rec.Kind)).
			Warn("analytics archive insert failed")
	}
}
