package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			// Leaderboard ordering: score desc, earliest activity first
			`CREATE INDEX IF NOT EXISTS idx_member_reputations_leaderboard
				ON member_reputations (community_id, score DESC, last_event_at ASC)`,
			// Audit history range queries
			`CREATE INDEX IF NOT EXISTS idx_reputation_events_community_time
				ON reputation_events (community_id, occurred_at DESC, sequence DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_reputation_events_user_time
				ON reputation_events (community_id, user_id, occurred_at DESC, sequence DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_reputation_events_identity_time
				ON reputation_events (identity_id, occurred_at DESC) WHERE identity_id <> 0`,
			// Redelivered batches hit this instead of double-scoring
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_reputation_events_dedup
				ON reputation_events (community_id, dedup_key) WHERE dedup_key IS NOT NULL`,
		}

		for _, index := range indexes {
			if _, err := db.NewRaw(index).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			"idx_member_reputations_leaderboard",
			"idx_reputation_events_community_time",
			"idx_reputation_events_user_time",
			"idx_reputation_events_identity_time",
			"idx_reputation_events_dedup",
		}

		for _, index := range indexes {
			if _, err := db.NewRaw(fmt.Sprintf("DROP INDEX IF EXISTS %s", index)).Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop index %s: %w", index, err)
			}
		}

		return nil
	})
}
