// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
)

// ErrUnreachable is the default failure injected by UnreachableKV.
var ErrUnreachable = errors.New("store unreachable")

// UnreachableKV is a KeyValueStore whose every operation fails, simulating a
// store outage for fail-open and fail-closed tests.
type UnreachableKV struct {
	Err error
}

var _ storage.KeyValueStore = (*UnreachableKV)(nil)

// NewUnreachableKV creates an UnreachableKV failing with err, or with
// ErrUnreachable when err is nil.
func NewUnreachableKV(err error) *UnreachableKV {
	if err == nil {
		err = ErrUnreachable
	}
	return &UnreachableKV{Err: err}
}

func (u *UnreachableKV) Get(context.Context, string) (string, error) { return "", u.Err }
func (u *UnreachableKV) Set(context.Context, string, string, time.Duration) error {
	return u.Err
}
func (u *UnreachableKV) Delete(context.Context, string) error        { return u.Err }
func (u *UnreachableKV) Exists(context.Context, string) (bool, error) { return false, u.Err }
func (u *UnreachableKV) Keys(context.Context, string) ([]string, error) {
	return nil, u.Err
}
func (u *UnreachableKV) Incr(context.Context, string) (int64, error) { return 0, u.Err }
func (u *UnreachableKV) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, u.Err
}
func (u *UnreachableKV) TTL(context.Context, string) (time.Duration, error) { return 0, u.Err }
func (u *UnreachableKV) HSet(context.Context, string, string, string) error { return u.Err }
func (u *UnreachableKV) HGet(context.Context, string, string) (string, error) {
	return "", u.Err
}
func (u *UnreachableKV) HGetAll(context.Context, string) (map[string]string, error) {
	return nil, u.Err
}
func (u *UnreachableKV) RPush(context.Context, string, ...string) (int64, error) {
	return 0, u.Err
}
func (u *UnreachableKV) LRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, u.Err
}
func (u *UnreachableKV) ZAdd(context.Context, string, ...storage.ZMember) error { return u.Err }
func (u *UnreachableKV) ZRevRangeWithScores(context.Context, string, int64, int64) ([]storage.ZMember, error) {
	return nil, u.Err
}
func (u *UnreachableKV) Ping(context.Context) error { return u.Err }

// FlakyKV wraps a working KeyValueStore and injects failures into selected
// operations, counting calls so tests can assert on retry behavior.
type FlakyKV struct {
	storage.KeyValueStore

	mu        sync.Mutex
	IncrErr   error
	DeleteErr error
	GetErr    error
	SetErr    error
	KeysErr   error
	ExpireErr error
	ZAddErr   error

	IncrCalls   int
	DeleteCalls int
}

// NewFlakyKV wraps the given delegate store.
func NewFlakyKV(delegate storage.KeyValueStore) *FlakyKV {
	return &FlakyKV{KeyValueStore: delegate}
}

func (f *FlakyKV) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	f.IncrCalls++
	err := f.IncrErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.KeyValueStore.Incr(ctx, key)
}

func (f *FlakyKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.DeleteCalls++
	err := f.DeleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KeyValueStore.Delete(ctx, key)
}

func (f *FlakyKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	err := f.GetErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.KeyValueStore.Get(ctx, key)
}

func (f *FlakyKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	err := f.SetErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KeyValueStore.Set(ctx, key, value, ttl)
}

func (f *FlakyKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	err := f.KeysErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.KeyValueStore.Keys(ctx, pattern)
}

func (f *FlakyKV) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	err := f.ExpireErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.KeyValueStore.Expire(ctx, key, ttl)
}

func (f *FlakyKV) ZAdd(ctx context.Context, key string, members ...storage.ZMember) error {
	f.mu.Lock()
	err := f.ZAddErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KeyValueStore.ZAdd(ctx, key, members...)
}

// UnreachableAnalytics is an AnalyticsStore whose every operation fails.
type UnreachableAnalytics struct {
	Err error
}

var _ storage.AnalyticsStore = (*UnreachableAnalytics)(nil)

// NewUnreachableAnalytics creates an UnreachableAnalytics failing with err,
// or with ErrUnreachable when err is nil.
func NewUnreachableAnalytics(err error) *UnreachableAnalytics {
	if err == nil {
		err = ErrUnreachable
	}
	return &UnreachableAnalytics{Err: err}
}

func (u *UnreachableAnalytics) InsertEvent(context.Context, storage.AnalyticsEvent) error {
	return u.Err
}

func (u *UnreachableAnalytics) CountEventsByKind(context.Context) (map[string]int64, error) {
	return nil, u.Err
}

func (u *UnreachableAnalytics) RecentEvents(context.Context, int) ([]storage.AnalyticsEvent, error) {
	return nil, u.Err
}
