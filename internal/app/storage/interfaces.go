package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key, hash field, or row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrWrongType is returned when an operation hits a key holding a value of an
// incompatible underlying type, e.g. INCR against non-integer data.
var ErrWrongType = errors.New("storage: wrong value type")

// ZMember is one scored member of a sorted set.
type ZMember struct {
	Member string
	Score  float64
}

// AnalyticsEvent is one archived activity write, kept for the dashboard.
// IdentityToken is the masked form; the raw identity never reaches the
// archive.
type AnalyticsEvent struct {
	ID            string    `db:"id"`
	Kind          string    `db:"kind"`
	IdentityToken string    `db:"identity_token"`
	Value         int64     `db:"value"`
	Label         string    `db:"label"`
	OccurredAt    time.Time `db:"occurred_at"`
	RecordedAt    time.Time `db:"recorded_at"`
}

// KeyValueStore is the record store the engine runs against. The surface
// mirrors the subset of Redis the engine needs: strings with TTL, hashes,
// lists, sorted sets, atomic counters, prefix enumeration, and deletion.
// Implementations must make Incr atomic; nothing else requires coordination.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns every key matching pattern. Patterns use a trailing "*"
	// wildcard; anything else matches literally.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Incr atomically increments the integer at key, creating it at 1 when
	// absent. A non-integer value yields ErrWrongType.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an existing key; false means the key was absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	ZAdd(ctx context.Context, key string, members ...ZMember) error
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)

	Ping(ctx context.Context) error
}

// AnalyticsStore archives recorded activities for the analytics dashboard.
// Writes are strictly side-channel: callers log failures and carry on.
type AnalyticsStore interface {
	InsertEvent(ctx context.Context, event AnalyticsEvent) error
	CountEventsByKind(ctx context.Context) (map[string]int64, error)
	RecentEvents(ctx context.Context, limit int) ([]AnalyticsEvent, error)
}
