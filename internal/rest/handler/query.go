package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hubwatch/reputeer/internal/database"
	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Page size bounds for dashboard queries.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// QueryHandler serves the read-only dashboard surface: leaderboards,
// at-risk listings and audit history.
type QueryHandler struct {
	db     database.Client
	logger *zap.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(db database.Client, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		db:     db,
		logger: logger.Named("rest_query"),
	}
}

// Leaderboard returns a community's top members by score.
func (h *QueryHandler) Leaderboard(w http.ResponseWriter, req bunrouter.Request) error {
	communityID, err := pathID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid community id")
	}

	limit := queryLimit(req, defaultPageSize, maxPageSize)

	var cursor *types.LeaderboardCursor
	if token := req.URL.Query().Get("cursor"); token != "" {
		cursor = new(types.LeaderboardCursor)
		if err := decodeCursor(token, cursor); err != nil {
			return writeError(w, http.StatusBadRequest, "malformed cursor")
		}
	}

	entries, nextCursor, err := h.db.Model().Reputation().GetLeaderboard(req.Context(), communityID, cursor, limit)
	if err != nil {
		h.logger.Error("Failed to get leaderboard", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "failed to get leaderboard")
	}

	var next any
	if nextCursor != nil {
		next = nextCursor
	}

	return writePage(w, entries, next)
}

// AtRisk lists members within the at-risk margin above the community's
// auto-ban threshold.
func (h *QueryHandler) AtRisk(w http.ResponseWriter, req bunrouter.Request) error {
	communityID, err := pathID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid community id")
	}

	policy, err := h.db.Model().Policy().Get(req.Context(), communityID)
	if err != nil {
		h.logger.Error("Failed to get policy for at-risk listing", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "failed to get policy")
	}

	limit := queryLimit(req, defaultPageSize, maxPageSize)

	members, err := h.db.Model().Reputation().GetAtRiskMembers(
		req.Context(), communityID, policy.AutoBanThreshold, policy.AtRiskMargin, limit)
	if err != nil {
		h.logger.Error("Failed to get at-risk members", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "failed to get at-risk members")
	}

	return writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// History returns a community's audit records, optionally filtered by
// user and time window.
func (h *QueryHandler) History(w http.ResponseWriter, req bunrouter.Request) error {
	communityID, err := pathID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid community id")
	}

	filter := types.EventFilter{CommunityID: communityID}
	query := req.URL.Query()

	if raw := query.Get("user_id"); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return writeError(w, http.StatusBadRequest, "invalid user id")
		}

		filter.UserID = userID
	}

	if raw := query.Get("event_type"); raw != "" {
		filter.EventType = raw
	}

	start, end := query.Get("start"), query.Get("end")
	if start != "" && end != "" {
		startTime, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return writeError(w, http.StatusBadRequest, "invalid start time")
		}

		endTime, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return writeError(w, http.StatusBadRequest, "invalid end time")
		}

		filter.StartTime, filter.EndTime = startTime, endTime
	}

	limit := queryLimit(req, defaultPageSize, maxPageSize)

	var cursor *types.EventCursor
	if token := query.Get("cursor"); token != "" {
		cursor = new(types.EventCursor)
		if err := decodeCursor(token, cursor); err != nil {
			return writeError(w, http.StatusBadRequest, "malformed cursor")
		}
	}

	events, nextCursor, err := h.db.Model().Audit().GetHistory(req.Context(), filter, cursor, limit)
	if err != nil {
		h.logger.Error("Failed to get audit history", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "failed to get audit history")
	}

	var next any
	if nextCursor != nil {
		next = nextCursor
	}

	return writePage(w, events, next)
}

// writePage wraps a result list with an optional opaque next-page cursor.
func writePage(w http.ResponseWriter, items any, nextCursor any) error {
	body := map[string]any{"items": items}

	if nextCursor != nil {
		token, err := encodeCursor(nextCursor)
		if err != nil {
			return writeError(w, http.StatusInternalServerError, "failed to encode cursor")
		}

		body["next_cursor"] = token
	}

	return writeJSON(w, http.StatusOK, body)
}
