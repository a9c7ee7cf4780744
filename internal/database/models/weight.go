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

var ErrNoWeightConfig = errors.New("no weight config for community")

// GlobalWeightConfigID is the reserved community ID holding the default
// weight table that applies when a community has no override.
const GlobalWeightConfigID = uint64(0)

// WeightModel handles per-community weight tables and the global default table.
type WeightModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewWeight creates a repository with database access for weight tables.
func NewWeight(db *bun.DB, logger *zap.Logger) *WeightModel {
	return &WeightModel{
		db:     db,
		logger: logger.Named("db_weight"),
	}
}

// GetConfig retrieves the weight table for a community.
// Returns ErrNoWeightConfig when the community has no override.
func (r *WeightModel) GetConfig(ctx context.Context, communityID uint64) (*types.WeightConfig, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.WeightConfig, error) {
		config := new(types.WeightConfig)

		err := r.db.NewSelect().Model(config).
			Where("community_id = ?", communityID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNoWeightConfig
			}

			return nil, fmt.Errorf("failed to get weight config: %w", err)
		}

		return config, nil
	})
}

// GetDefaults retrieves the global default weight table.
func (r *WeightModel) GetDefaults(ctx context.Context) (*types.WeightConfig, error) {
	return r.GetConfig(ctx, GlobalWeightConfigID)
}

// Upsert validates and writes a weight table. Callers are responsible for
// invalidating the resolver cache after a successful write.
func (r *WeightModel) Upsert(ctx context.Context, config *types.WeightConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid weight config: %w", err)
	}

	config.UpdatedAt = time.Now()

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(config).
			On("CONFLICT (community_id) DO UPDATE").
			Set("weights = EXCLUDED.weights").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert weight config: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("Upserted weight config",
		zap.Uint64("communityID", config.CommunityID),
		zap.Int("entries", len(config.Weights)))

	return nil
}
