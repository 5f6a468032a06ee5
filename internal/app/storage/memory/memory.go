package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. Expiry is evaluated lazily against an injectable clock.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	strings map[string]stringEntry
	hashes  map[string]hashEntry
	lists   map[string]listEntry
	zsets   map[string]zsetEntry
	events  []storage.AnalyticsEvent
}

type stringEntry struct {
	value     string
	expiresAt time.Time
}

type hashEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

type listEntry struct {
	items     []string
	expiresAt time.Time
}

type zsetEntry struct {
	scores    map[string]float64
	expiresAt time.Time
}

var _ storage.KeyValueStore = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		now:     time.Now,
		strings: make(map[string]stringEntry),
		hashes:  make(map[string]hashEntry),
		lists:   make(map[string]listEntry),
		zsets:   make(map[string]zsetEntry),
	}
}

// SetClock overrides the time source used for expiry, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

func (s *Store) liveLocked(expiresAt time.Time) bool {
	return expiresAt.IsZero() || s.now().Before(expiresAt)
}

// dropLocked removes key from every type table.
func (s *Store) dropLocked(key string) {
	delete(s.strings, key)
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.zsets, key)
}

// typeOfLocked reports which table holds a live entry for key, pruning any
// expired entry it encounters.
func (s *Store) typeOfLocked(key string) string {
	if e, ok := s.strings[key]; ok {
		if s.liveLocked(e.expiresAt) {
			return "string"
		}
		delete(s.strings, key)
	}
	if e, ok := s.hashes[key]; ok {
		if s.liveLocked(e.expiresAt) {
			return "hash"
		}
		delete(s.hashes, key)
	}
	if e, ok := s.lists[key]; ok {
		if s.liveLocked(e.expiresAt) {
			return "list"
		}
		delete(s.lists, key)
	}
	if e, ok := s.zsets[key]; ok {
		if s.liveLocked(e.expiresAt) {
			return "zset"
		}
		delete(s.zsets, key)
	}
	return ""
}

func (s *Store) expiryLocked(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// String operations ----------------------------------------------------------

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "":
		return "", storage.ErrNotFound
	case "string":
		return s.strings[key].value, nil
	default:
		return "", storage.ErrWrongType
	}
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(key)
	s.strings[key] = stringEntry{value: value, expiresAt: s.expiryLocked(ttl)}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(key)
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.typeOfLocked(key) != "", nil
}

func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := func(key string) bool {
		if strings.HasSuffix(pattern, "*") {
			return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
		}
		return key == pattern
	}

	var keys []string
	collect := func(key string) {
		if match(key) && s.typeOfLocked(key) != "" {
			keys = append(keys, key)
		}
	}
	for key := range s.strings {
		collect(key)
	}
	for key := range s.hashes {
		collect(key)
	}
	for key := range s.lists {
		collect(key)
	}
	for key := range s.zsets {
		collect(key)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "":
		s.strings[key] = stringEntry{value: "1"}
		return 1, nil
	case "string":
		entry := s.strings[key]
		n, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, storage.ErrWrongType
		}
		n++
		entry.value = strconv.FormatInt(n, 10)
		s.strings[key] = entry
		return n, nil
	default:
		return 0, storage.ErrWrongType
	}
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.expiryLocked(ttl)
	switch s.typeOfLocked(key) {
	case "string":
		e := s.strings[key]
		e.expiresAt = expiresAt
		s.strings[key] = e
	case "hash":
		e := s.hashes[key]
		e.expiresAt = expiresAt
		s.hashes[key] = e
	case "list":
		e := s.lists[key]
		e.expiresAt = expiresAt
		s.lists[key] = e
	case "zset":
		e := s.zsets[key]
		e.expiresAt = expiresAt
		s.zsets[key] = e
	default:
		return false, nil
	}
	return true, nil
}

// TTL reports the remaining lifetime of key. Keys without expiry return a
// negative duration; absent keys return ErrNotFound.
func (s *Store) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt time.Time
	switch s.typeOfLocked(key) {
	case "":
		return 0, storage.ErrNotFound
	case "string":
		expiresAt = s.strings[key].expiresAt
	case "hash":
		expiresAt = s.hashes[key].expiresAt
	case "list":
		expiresAt = s.lists[key].expiresAt
	case "zset":
		expiresAt = s.zsets[key].expiresAt
	}
	if expiresAt.IsZero() {
		return -1, nil
	}
	return expiresAt.Sub(s.now()), nil
}

// Hash operations ------------------------------------------------------------

func (s *Store) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "", "hash":
	default:
		return storage.ErrWrongType
	}

	entry, ok := s.hashes[key]
	if !ok {
		entry = hashEntry{fields: make(map[string]string)}
	}
	entry.fields[field] = value
	s.hashes[key] = entry
	return nil
}

func (s *Store) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "":
		return "", storage.ErrNotFound
	case "hash":
	default:
		return "", storage.ErrWrongType
	}

	value, ok := s.hashes[key].fields[field]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "":
		return map[string]string{}, nil
	case "hash":
	default:
		return nil, storage.ErrWrongType
	}

	fields := make(map[string]string, len(s.hashes[key].fields))
	for k, v := range s.hashes[key].fields {
		fields[k] = v
	}
	return fields, nil
}

// List operations ------------------------------------------------------------

func (s *Store) RPush(_ context.Context, key string, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "", "list":
	default:
		return 0, storage.ErrWrongType
	}

	entry := s.lists[key]
	entry.items = append(entry.items, values...)
	s.lists[key] = entry
	return int64(len(entry.items)), nil
}

func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "":
		return []string{}, nil
	case "list":
	default:
		return nil, storage.ErrWrongType
	}

	items := s.lists[key].items
	lo, hi, ok := normalizeRange(start, stop, int64(len(items)))
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, items[lo:hi+1])
	return out, nil
}

// Sorted-set operations ------------------------------------------------------

func (s *Store) ZAdd(_ context.Context, key string, members ...storage.ZMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "", "zset":
	default:
		return storage.ErrWrongType
	}

	entry, ok := s.zsets[key]
	if !ok {
		entry = zsetEntry{scores: make(map[string]float64)}
	}
	for _, m := range members {
		entry.scores[m.Member] = m.Score
	}
	s.zsets[key] = entry
	return nil
}

func (s *Store) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]storage.ZMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.typeOfLocked(key) {
	case "":
		return []storage.ZMember{}, nil
	case "zset":
	default:
		return nil, storage.ErrWrongType
	}

	members := make([]storage.ZMember, 0, len(s.zsets[key].scores))
	for member, score := range s.zsets[key].scores {
		members = append(members, storage.ZMember{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member > members[j].Member
	})

	lo, hi, ok := normalizeRange(start, stop, int64(len(members)))
	if !ok {
		return []storage.ZMember{}, nil
	}
	return members[lo : hi+1], nil
}

func (s *Store) Ping(context.Context) error { return nil }

// normalizeRange resolves Redis-style inclusive start/stop indices, where
// negative values count from the tail.
func normalizeRange(start, stop, length int64) (int64, int64, bool) {
	if length == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || start >= length {
		return 0, 0, false
	}
	return start, stop, true
}

// AnalyticsStore implementation ----------------------------------------------

func (s *Store) InsertEvent(_ context.Context, event storage.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

func (s *Store) CountEventsByKind(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, event := range s.events {
		counts[event.Kind]++
	}
	return counts, nil
}

func (s *Store) RecentEvents(_ context.Context, limit int) ([]storage.AnalyticsEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []storage.AnalyticsEvent{}, nil
	}

	events := make([]storage.AnalyticsEvent, len(s.events))
	copy(events, s.events)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].RecordedAt.After(events[j].RecordedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
