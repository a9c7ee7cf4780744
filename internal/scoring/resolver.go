package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/hubwatch/reputeer/internal/cache"
	"github.com/hubwatch/reputeer/internal/database/models"
	"github.com/hubwatch/reputeer/internal/database/types"
	"go.uber.org/zap"
)

// WeightSource reads weight tables from durable storage.
type WeightSource interface {
	// GetConfig returns a community's weight table, or
	// models.ErrNoWeightConfig when the community has no override.
	GetConfig(ctx context.Context, communityID uint64) (*types.WeightConfig, error)
}

// WeightResolver resolves the weight and multiplier for an event type
// within a community, preferring a community override (premium feature)
// over the global default table. Resolved tables are cached per community
// with a fixed TTL; config writes invalidate the entry immediately.
type WeightResolver struct {
	source WeightSource
	cache  *cache.TTLMap[uint64, *types.WeightConfig]
	logger *zap.Logger
}

// NewWeightResolver creates a resolver with its own TTL cache.
func NewWeightResolver(source WeightSource, ttl time.Duration, logger *zap.Logger) *WeightResolver {
	return &WeightResolver{
		source: source,
		cache:  cache.NewTTLMap[uint64, *types.WeightConfig](ttl),
		logger: logger.Named("weight_resolver"),
	}
}

// Resolve returns the weight for an event type. Lookup order: community
// override when the community is entitled to custom weighting, then the
// global default table, then a zero-weight fallback with a logged warning.
// An unrecognized event type never blocks a batch.
func (r *WeightResolver) Resolve(
	ctx context.Context, communityID uint64, eventType string, customWeights bool,
) types.EventWeight {
	if customWeights {
		if config := r.lookup(ctx, communityID); config != nil {
			if weight, ok := config.Weights[eventType]; ok {
				return weight
			}
		}
	}

	if defaults := r.lookup(ctx, models.GlobalWeightConfigID); defaults != nil {
		if weight, ok := defaults.Weights[eventType]; ok {
			return weight
		}
	}

	r.logger.Warn("No weight for event type, scoring as zero",
		zap.Uint64("communityID", communityID),
		zap.String("eventType", eventType))

	return types.EventWeight{Weight: 0, Multiplier: 1}
}

// Invalidate drops a community's cached weight table immediately after a
// config write. Batches already in flight may still observe the previous
// table; that staleness window is documented behavior, not a defect.
func (r *WeightResolver) Invalidate(communityID uint64) {
	r.cache.Invalidate(communityID)
}

// lookup returns a community's weight table from cache or storage.
// Communities without a table are negative-cached so repeated misses
// don't hammer the store.
func (r *WeightResolver) lookup(ctx context.Context, communityID uint64) *types.WeightConfig {
	if config, ok := r.cache.Get(communityID); ok {
		return config
	}

	config, err := r.source.GetConfig(ctx, communityID)
	if err != nil {
		if errors.Is(err, models.ErrNoWeightConfig) {
			r.cache.Set(communityID, &types.WeightConfig{CommunityID: communityID})
			return nil
		}

		r.logger.Error("Failed to load weight config",
			zap.Uint64("communityID", communityID),
			zap.Error(err))

		return nil
	}

	r.cache.Set(communityID, config)

	return config
}
