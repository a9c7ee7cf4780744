package scoring

import (
	"context"
	"time"

	"github.com/hubwatch/reputeer/internal/cache"
	"github.com/hubwatch/reputeer/internal/database/types"
	"go.uber.org/zap"
)

// PolicySource reads reputation policies from durable storage.
type PolicySource interface {
	Get(ctx context.Context, communityID uint64) (*types.ReputationPolicy, error)
}

// PolicyCache fronts the policy store with the same TTL semantics as the
// weight cache: entries expire on their own or are invalidated immediately
// when the admin surface writes a policy.
type PolicyCache struct {
	source PolicySource
	cache  *cache.TTLMap[uint64, *types.ReputationPolicy]
	logger *zap.Logger
}

// NewPolicyCache creates a policy cache with the given TTL.
func NewPolicyCache(source PolicySource, ttl time.Duration, logger *zap.Logger) *PolicyCache {
	return &PolicyCache{
		source: source,
		cache:  cache.NewTTLMap[uint64, *types.ReputationPolicy](ttl),
		logger: logger.Named("policy_cache"),
	}
}

// Get returns a community's policy, from cache when fresh.
func (c *PolicyCache) Get(ctx context.Context, communityID uint64) (*types.ReputationPolicy, error) {
	if policy, ok := c.cache.Get(communityID); ok {
		return policy, nil
	}

	policy, err := c.source.Get(ctx, communityID)
	if err != nil {
		return nil, err
	}

	c.cache.Set(communityID, policy)

	return policy, nil
}

// Invalidate drops a community's cached policy after a write.
func (c *PolicyCache) Invalidate(communityID uint64) {
	c.cache.Invalidate(communityID)
}
