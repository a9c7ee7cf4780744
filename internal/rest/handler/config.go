package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/hubwatch/reputeer/internal/cache"
	"github.com/hubwatch/reputeer/internal/database"
	"github.com/hubwatch/reputeer/internal/database/models"
	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/hubwatch/reputeer/internal/scoring"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// ConfigHandler serves the admin surface for policies and weight tables.
// Every write invalidates the corresponding local cache entry synchronously
// and broadcasts the invalidation to sibling engine instances.
type ConfigHandler struct {
	db              database.Client
	resolver        *scoring.WeightResolver
	policies        *scoring.PolicyCache
	weightBroadcast *cache.Broadcaster
	policyBroadcast *cache.Broadcaster
	logger          *zap.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(
	db database.Client, resolver *scoring.WeightResolver, policies *scoring.PolicyCache,
	weightBroadcast, policyBroadcast *cache.Broadcaster, logger *zap.Logger,
) *ConfigHandler {
	return &ConfigHandler{
		db:              db,
		resolver:        resolver,
		policies:        policies,
		weightBroadcast: weightBroadcast,
		policyBroadcast: policyBroadcast,
		logger:          logger.Named("rest_config"),
	}
}

// GetPolicy returns a community's reputation policy.
func (h *ConfigHandler) GetPolicy(w http.ResponseWriter, req bunrouter.Request) error {
	communityID, err := pathID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid community id")
	}

	policy, err := h.db.Model().Policy().Get(req.Context(), communityID)
	if err != nil {
		h.logger.Error("Failed to get policy", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "failed to get policy")
	}

	return writeJSON(w, http.StatusOK, policy)
}

// PutPolicy writes a community's reputation policy.
func (h *ConfigHandler) PutPolicy(w http.ResponseWriter, req bunrouter.Request) error {
	communityID, err := pathID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid community id")
	}

	var policy types.ReputationPolicy
	if err := decodeBody(req, &policy); err != nil {
		return writeError(w, http.StatusBadRequest, "malformed JSON body")
	}

	policy.CommunityID = communityID

	if err := h.db.Model().Policy().Upsert(req.Context(), &policy); err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	h.policies.Invalidate(communityID)
	h.broadcast(req.Context(), h.policyBroadcast, communityID)

	return writeJSON(w, http.StatusOK, policy)
}

// GetWeights returns a community's weight table override.
func (h *ConfigHandler) GetWeights(w http.ResponseWriter, req bunrouter.Request) error {
	communityID, err := pathID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid community id")
	}

	config, err := h.db.Model().Weight().GetConfig(req.Context(), communityID)
	if err != nil {
		if errors.Is(err, models.ErrNoWeightConfig) {
			return writeError(w, http.StatusNotFound, "community has no weight override")
		}

		h.logger.Error("Failed to get weight config", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, "failed to get weight config")
	}

	return writeJSON(w, http.StatusOK, config)
}

// PutWeights writes a community's weight table override. Gated on the
// community's custom-weights entitlement.
func (h *ConfigHandler) PutWeights(w http.ResponseWriter, req bunrouter.Request) error {
	communityID, err := pathID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid community id")
	}

	policy, err := h.db.Model().Policy().Get(req.Context(), communityID)
	if err != nil {
		h.logger.Error("Failed to get policy for entitlement check", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "failed to check entitlement")
	}

	if !policy.CustomWeights {
		return writeError(w, http.StatusForbidden, "community is not entitled to custom weights")
	}

	return h.putWeightConfig(w, req, communityID)
}

// PutDefaultWeights writes the global default weight table.
func (h *ConfigHandler) PutDefaultWeights(w http.ResponseWriter, req bunrouter.Request) error {
	return h.putWeightConfig(w, req, models.GlobalWeightConfigID)
}

func (h *ConfigHandler) putWeightConfig(
	w http.ResponseWriter, req bunrouter.Request, communityID uint64,
) error {
	var config types.WeightConfig
	if err := decodeBody(req, &config); err != nil {
		return writeError(w, http.StatusBadRequest, "malformed JSON body")
	}

	config.CommunityID = communityID

	if err := h.db.Model().Weight().Upsert(req.Context(), &config); err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	h.resolver.Invalidate(communityID)
	h.broadcast(req.Context(), h.weightBroadcast, communityID)

	return writeJSON(w, http.StatusOK, config)
}

// broadcast relays an invalidation to sibling instances. Failures are
// logged only; the local invalidation already happened and siblings will
// converge within the cache TTL.
func (h *ConfigHandler) broadcast(ctx context.Context, b *cache.Broadcaster, communityID uint64) {
	if b == nil {
		return
	}

	if err := b.Publish(ctx, communityID); err != nil {
		h.logger.Warn("Failed to broadcast cache invalidation",
			zap.Uint64("communityID", communityID),
			zap.Error(err))
	}
}

func decodeBody(req bunrouter.Request, v any) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	return sonic.Unmarshal(body, v)
}
