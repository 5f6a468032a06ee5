package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
)

// Store archives analytics events in PostgreSQL. It backs the dashboard's
// summary views and is always written to as a side channel: the engine never
// blocks a primary operation on it.
type Store struct {
	db *sqlx.DB
}

var _ storage.AnalyticsStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertEvent(ctx context.Context, event storage.AnalyticsEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_analytics_events (id, kind, identity_token, value, label, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.Kind, event.IdentityToken, event.Value, event.Label, event.OccurredAt, event.RecordedAt)
	return err
}

func (s *Store) CountEventsByKind(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM app_analytics_events
		GROUP BY kind
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]storage.AnalyticsEvent, error) {
	if limit <= 0 {
		return []storage.AnalyticsEvent{}, nil
	}

	events := []storage.AnalyticsEvent{}
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, kind, identity_token, value, label, occurred_at, recorded_at
		FROM app_analytics_events
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}
