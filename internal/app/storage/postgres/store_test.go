package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestInsertEventFillsDefaults(t *testing.T) {
	store, mock := newMockStore(t)

	occurred := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO app_analytics_events").
		WithArgs(sqlmock.AnyArg(), "quiz", "anon-1a2b3c4d", int64(7), "Quiz Completed", occurred, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.InsertEvent(context.Background(), storage.AnalyticsEvent{
		Kind:          "quiz",
		IdentityToken: "anon-1a2b3c4d",
		Value:         7,
		Label:         "Quiz Completed",
		OccurredAt:    occurred,
	})
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountEventsByKind(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT kind, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "count"}).
			AddRow("quiz", 12).
			AddRow("game", 4))

	counts, err := store.CountEventsByKind(context.Background())
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if counts["quiz"] != 12 || counts["game"] != 4 {
		t.Fatalf("unexpected counts %v", counts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentEventsOrdersAndLimits(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, kind, identity_token").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "identity_token", "value", "label", "occurred_at", "recorded_at"}).
			AddRow("b", "game", "anon-b", 120, "Arcade Run", now, now).
			AddRow("a", "quiz", "anon-a", 7, "Quiz Completed", now.Add(-time.Hour), now.Add(-time.Hour)))

	events, err := store.RecentEvents(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "b" || events[1].Kind != "quiz" {
		t.Fatalf("unexpected events %v", events)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentEventsRejectsNonPositiveLimit(t *testing.T) {
	store, _ := newMockStore(t)

	events, err := store.RecentEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty slice, got %v", events)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()

	event := storage.AnalyticsEvent{
		Kind:          "tips",
		IdentityToken: "anon-it",
		Value:         3,
		Label:         "Tip Shared",
		OccurredAt:    time.Now().UTC(),
	}
	if err := store.InsertEvent(ctx, event); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	counts, err := store.CountEventsByKind(ctx)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if counts["tips"] == 0 {
		t.Fatal("expected at least one tips event")
	}
}
