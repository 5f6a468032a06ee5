package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
)

// Store adapts a go-redis client to the engine's KeyValueStore interface.
// All coordination the engine relies on (atomic INCR, TTL expiry) is
// delegated to the Redis server.
type Store struct {
	client *goredis.Client
}

var _ storage.KeyValueStore = (*Store)(nil)

// New wraps an already-configured client. The caller owns the client's
// lifecycle and closes it on shutdown.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

// translate maps driver errors onto the storage sentinels so callers can
// classify outcomes without knowing the backend.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.Nil) {
		return storage.ErrNotFound
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "WRONGTYPE") || strings.Contains(msg, "not an integer") {
		return fmt.Errorf("%w: %s", storage.ErrWrongType, msg)
	}
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", translate(err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return translate(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return translate(s.client.Del(ctx, key).Err())
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// Keys enumerates matches with SCAN rather than KEYS so a large record set
// does not stall the server.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, translate(err)
	}
	// go-redis passes the protocol's -2 (missing) and -1 (no expiry) through
	// unscaled.
	switch d {
	case -2:
		return 0, storage.ErrNotFound
	case -1:
		return -1, nil
	}
	return d, nil
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	return translate(s.client.HSet(ctx, key, field, value).Err())
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if err != nil {
		return "", translate(err)
	}
	return val, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, translate(err)
	}
	return fields, nil
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := s.client.RPush(ctx, key, args...).Result()
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	items, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) ZAdd(ctx context.Context, key string, members ...storage.ZMember) error {
	zs := make([]*goredis.Z, len(members))
	for i, m := range members {
		zs[i] = &goredis.Z{Score: m.Score, Member: m.Member}
	}
	return translate(s.client.ZAdd(ctx, key, zs...).Err())
}

func (s *Store) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]storage.ZMember, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, translate(err)
	}
	members := make([]storage.ZMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		members = append(members, storage.ZMember{Member: member, Score: z.Score})
	}
	return members, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return translate(s.client.Ping(ctx).Err())
}
