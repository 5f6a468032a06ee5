package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements are applied in order on every startup. Each one is idempotent
// so reapplying against an already-migrated database is a no-op.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS app_analytics_events (
		id             TEXT PRIMARY KEY,
		kind           TEXT NOT NULL,
		identity_token TEXT NOT NULL,
		value          BIGINT NOT NULL,
		label          TEXT NOT NULL DEFAULT '',
		occurred_at    TIMESTAMPTZ NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_events_kind
		ON app_analytics_events (kind)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_events_recorded_at
		ON app_analytics_events (recorded_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_events_identity
		ON app_analytics_events (identity_token)`,
}

// Apply runs the schema statements against db.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
