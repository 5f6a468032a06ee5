//go:build integration && postgres

package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/PlayPark-Labs/engagement_engine/internal/app"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage/postgres"
	"github.com/PlayPark-Labs/engagement_engine/internal/platform/migrations"
)

// Integration test against Postgres to ensure migrations and the analytics
// archive work with real persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	application, err := app.New(app.Config{}, app.Stores{Analytics: postgres.New(db)}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler := NewHandler(application, nil)

	sessionID, _ := registerSession(t, handler, "Integration")

	// A unique label isolates this run from rows left by earlier ones.
	label := fmt.Sprintf("itest-%d", time.Now().UnixNano())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, jsonRequest(http.MethodPost, "/v1/activities", marshal(map[string]any{
		"kind":      "quiz",
		"sessionId": sessionID,
		"value":     12,
		"label":     label,
	})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("record activity status %d: %s", resp.Code, resp.Body.String())
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM app_analytics_events WHERE label = $1`, label); err != nil {
		t.Fatalf("count archived events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 archived event for label %s, got %d", label, count)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, jsonRequest(http.MethodGet, "/v1/analytics/summary", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("summary status %d", resp.Code)
	}
	var summary struct {
		Counts map[string]int64 `json:"counts"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Counts["quiz"] < 1 {
		t.Fatalf("expected at least one archived quiz event, got %v", summary.Counts)
	}
}
