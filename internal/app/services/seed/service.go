// Package seed installs the static content documents the demo app reads:
// the quiz question bank, the tip topic catalog, and the arcade settings.
// Seeding runs once at startup, is awaited before the listener opens, and is
// idempotent: an existing key is never overwritten.
package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// Document is one opaque content payload keyed in the store. The engine never
// interprets the body.
type Document struct {
	Key  string
	Body string
}

// DefaultDocuments returns the built-in demo content set.
func DefaultDocuments() []Document {
	return []Document{
		{
			Key: "content:quiz:questions",
			Body: `{"questions":[
  {"id":"q1","prompt":"Which HTTP status signals too many requests?","choices":["404","418","429","503"],"answer":2},
  {"id":"q2","prompt":"What does TTL stand for?","choices":["Time To Live","Total Transfer Limit","Type Tag Length","Try Twice Later"],"answer":0},
  {"id":"q3","prompt":"Which structure backs a sorted leaderboard in Redis?","choices":["list","hash","set","sorted set"],"answer":3},
  {"id":"q4","prompt":"A cache entry with no invalidation goes stale after…","choices":["one write","its TTL","a restart","never"],"answer":1},
  {"id":"q5","prompt":"Atomic INCR on a missing key yields…","choices":["an error","0","1","nil"],"answer":2}
]}`,
		},
		{
			Key: "content:tips:catalog",
			Body: `{"topics":[
  {"id":"t1","title":"Pace yourself","blurb":"Three quiz tries per day; make them count."},
  {"id":"t2","title":"Chase the window","blurb":"Only the last 30 days of scores rank."},
  {"id":"t3","title":"Share to climb","blurb":"Tips are ranked by total likes, not count."}
]}`,
		},
		{
			Key:  "content:game:settings",
			Body: `{"speed":1.0,"lives":3,"bonusEvery":500,"theme":"neon"}`,
		},
	}
}

// Service writes the content documents into the store.
type Service struct {
	kv   storage.KeyValueStore
	log  *logger.Logger
	docs []Document
}

// New constructs a seeder. A nil docs slice seeds the built-in content.
func New(kv storage.KeyValueStore, docs []Document, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("seed")
	}
	if docs == nil {
		docs = DefaultDocuments()
	}
	return &Service{
		kv:   kv,
		log:  log,
		docs: docs,
	}
}

// Seed writes every missing document. Content never expires, so documents
// are stored without a TTL. Any store failure aborts and surfaces: a partial
// content set is a startup error, not a warning.
func (s *Service) Seed(ctx context.Context) error {
	var seeded, skipped int
	for _, doc := range s.docs {
		key := strings.TrimSpace(doc.Key)
		if key == "" {
			return fmt.Errorf("seed document key is required")
		}

		exists, err := s.kv.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("check content %s: %w", key, err)
		}
		if exists {
			skipped++
			continue
		}
		if err := s.kv.Set(ctx, key, doc.Body, 0); err != nil {
			return fmt.Errorf("seed content %s: %w", key, err)
		}
		seeded++
	}

	s.log.WithField("seeded", seeded).
		WithField("skipped", skipped).
		Info("content seeding complete")
	return nil
}
