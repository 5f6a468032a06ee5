package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/quota"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/metrics"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

const (
	keyPrefix  = "quota:attempts:"
	counterTTL = 24 * time.Hour

	// DefaultMaxPerDay is the attempt budget callers gate on when no limit
	// is configured.
	DefaultMaxPerDay = 3
)

// Service maintains the per-identity daily attempt counters. All mutation is
// delegated to the store's atomic increment; the service never does
// read-modify-write. The counter records attempts but does not enforce the
// cap; callers consult Status before admitting a new attempt.
type Service struct {
	kv        storage.KeyValueStore
	log       *logger.Logger
	maxPerDay int64
	now       func() time.Time
}

// New creates a configured quota service.
func New(kv storage.KeyValueStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("quota")
	}
	return &Service{
		kv:        kv,
		log:       log,
		maxPerDay: DefaultMaxPerDay,
		now:       time.Now,
	}
}

// WithMaxPerDay overrides the advisory daily cap. Non-positive values keep
// the default.
func (s *Service) WithMaxPerDay(max int64) *Service {
	if max > 0 {
		s.maxPerDay = max
	}
	return s
}

// WithClock overrides the time source, for tests crossing day boundaries.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) dayKey(identityHash string, t time.Time) string {
	return keyPrefix + identityHash + ":" + t.UTC().Format("2006-01-02")
}

// Increment bumps the identity's counter for the current UTC day and returns
// the new count. The first increment of a day arms a 24h TTL; the two store
// calls are not atomic, so a crash in between leaves a counter without
// expiry, which is accepted for this system. A counter holding non-integer
// data is deleted and the increment retried exactly once.
func (s *Service) Increment(ctx context.Context, identityHash string) (int64, error) {
	identityHash = strings.TrimSpace(identityHash)
	if identityHash == "" {
		return 0, fmt.Errorf("identity hash is required")
	}

	key := s.dayKey(identityHash, s.now())

	count, err := s.kv.Incr(ctx, key)
	if errors.Is(err, storage.ErrWrongType) {
		s.log.WithField("key", key).Warn("attempt counter corrupted; deleting and retrying once")
		metrics.RecordCounterRepair()
		if delErr := s.kv.Delete(ctx, key); delErr != nil {
			return 0, fmt.Errorf("repair attempt counter: %w", delErr)
		}
		count, err = s.kv.Incr(ctx, key)
	}
	if err != nil {
		return 0, fmt.Errorf("increment attempt counter: %w", err)
	}

	if count == 1 {
		if _, err := s.kv.Expire(ctx, key, counterTTL); err != nil {
			// The counter is valid, only its expiry is missing; the next
			// day's key takes over regardless.
			s.log.WithError(err).WithField("key", key).Warn("set counter ttl failed")
		}
	}

	metrics.RecordQuotaIncrement()
	return count, nil
}

// Peek reads the current count without mutating it. Any failure reads as
// zero: an unverifiable quota never blocks the visitor.
func (s *Service) Peek(ctx context.Context, identityHash string) int64 {
	identityHash = strings.TrimSpace(identityHash)
	if identityHash == "" {
		return 0
	}

	key := s.dayKey(identityHash, s.now())
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).WithField("key", key).Warn("peek attempt counter failed; assuming zero")
		}
		return 0
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.log.WithField("key", key).Warn("attempt counter holds non-integer data; assuming zero")
		return 0
	}
	if count < 0 {
		return 0
	}
	return count
}

// Status reports the identity's attempt budget for today. Fail-open: when
// the store cannot be read the visitor may proceed.
func (s *Service) Status(ctx context.Context, identityHash string) quota.Status {
	attempts := s.Peek(ctx, identityHash)
	return quota.Status{
		AttemptsToday: attempts,
		MaxPerDay:     s.maxPerDay,
		CanProceed:    attempts < s.maxPerDay,
	}
}
