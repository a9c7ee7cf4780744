package migrations

import (
	"context"
	"fmt"

	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.MemberReputation)(nil),
			(*types.GlobalReputation)(nil),
			(*types.ReputationEvent)(nil),
			(*types.WeightConfig)(nil),
			(*types.ReputationPolicy)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}

		// Score bounds are enforced at the database level as a last line
		// of defense behind the calculator's clamping.
		checks := []string{
			fmt.Sprintf("ALTER TABLE member_reputations ADD CONSTRAINT member_score_bounds CHECK (score BETWEEN %d AND %d)",
				types.ScoreFloor, types.ScoreCeiling),
			fmt.Sprintf("ALTER TABLE global_reputations ADD CONSTRAINT global_score_bounds CHECK (score BETWEEN %d AND %d)",
				types.ScoreFloor, types.ScoreCeiling),
			"ALTER TABLE member_reputations ADD CONSTRAINT member_events_non_negative CHECK (total_events >= 0)",
			"ALTER TABLE global_reputations ADD CONSTRAINT global_events_non_negative CHECK (total_events >= 0)",
		}

		for _, check := range checks {
			if _, err := db.NewRaw(check).Exec(ctx); err != nil {
				return fmt.Errorf("failed to add constraint: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{
			"reputation_policies",
			"weight_configs",
			"reputation_events",
			"global_reputations",
			"member_reputations",
		}

		for _, table := range tables {
			if _, err := db.NewDropTable().Table(table).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}
