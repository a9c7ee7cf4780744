package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hubwatch/reputeer/internal/database/dbretry"
	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PolicyModel handles per-community reputation policies.
type PolicyModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPolicy creates a repository with database access for policies.
func NewPolicy(db *bun.DB, logger *zap.Logger) *PolicyModel {
	return &PolicyModel{
		db:     db,
		logger: logger.Named("db_policy"),
	}
}

// Get retrieves a community's policy. Communities that never configured one
// fall back to the default policy with enforcement disabled.
func (r *PolicyModel) Get(ctx context.Context, communityID uint64) (*types.ReputationPolicy, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ReputationPolicy, error) {
		policy := new(types.ReputationPolicy)

		err := r.db.NewSelect().Model(policy).
			Where("community_id = ?", communityID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.DefaultPolicy(communityID), nil
			}

			return nil, fmt.Errorf("failed to get policy: %w", err)
		}

		return policy, nil
	})
}

// Upsert validates and writes a community policy.
func (r *PolicyModel) Upsert(ctx context.Context, policy *types.ReputationPolicy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	policy.UpdatedAt = time.Now()

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(policy).
			On("CONFLICT (community_id) DO UPDATE").
			Set("auto_ban_enabled = EXCLUDED.auto_ban_enabled").
			Set("auto_ban_threshold = EXCLUDED.auto_ban_threshold").
			Set("at_risk_margin = EXCLUDED.at_risk_margin").
			Set("starting_score = EXCLUDED.starting_score").
			Set("custom_weights = EXCLUDED.custom_weights").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert policy: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("Upserted policy",
		zap.Uint64("communityID", policy.CommunityID),
		zap.Bool("autoBanEnabled", policy.AutoBanEnabled),
		zap.Int("threshold", policy.AutoBanThreshold))

	return nil
}
