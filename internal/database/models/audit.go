package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/hubwatch/reputeer/internal/database/dbretry"
	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

var ErrNoEventsFound = errors.New("no audit events found")

// AuditModel handles the append-only reputation event log. Rows are written
// once inside the apply-event transaction and never updated or deleted.
type AuditModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAudit creates a repository for storing and querying audit records.
func NewAudit(db *bun.DB, logger *zap.Logger) *AuditModel {
	return &AuditModel{
		db:     db,
		logger: logger.Named("db_audit"),
	}
}

// Append writes one audit record using the provided connection, which is
// the apply-event transaction so score and audit never diverge.
func (r *AuditModel) Append(ctx context.Context, tx bun.IDB, event *types.ReputationEvent) error {
	if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	return nil
}

// GetHistory retrieves audit records matching the filter, newest first,
// with stable (occurred_at, sequence) cursor pagination.
func (r *AuditModel) GetHistory(
	ctx context.Context, filter types.EventFilter, cursor *types.EventCursor, limit int,
) ([]*types.ReputationEvent, *types.EventCursor, error) {
	var events []*types.ReputationEvent
	var nextCursor *types.EventCursor

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		query := r.db.NewSelect().Model(&events)

		if filter.CommunityID != 0 {
			query = query.Where("community_id = ?", filter.CommunityID)
		}

		if filter.UserID != 0 {
			query = query.Where("user_id = ?", filter.UserID)
		}

		if filter.IdentityID != 0 {
			query = query.Where("identity_id = ?", filter.IdentityID)
		}

		if filter.EventType != "" {
			query = query.Where("event_type = ?", filter.EventType)
		}

		if !filter.StartTime.IsZero() {
			query = query.Where("occurred_at >= ?", filter.StartTime)
		}

		if !filter.EndTime.IsZero() {
			query = query.Where("occurred_at <= ?", filter.EndTime)
		}

		if cursor != nil {
			query = query.Where("(occurred_at, sequence) <= (?, ?)", cursor.OccurredAt, cursor.Sequence)
		}

		// Fetch one extra row to determine whether more results exist
		query = query.Order("occurred_at DESC", "sequence DESC").
			Limit(limit + 1)

		if err := query.Scan(ctx); err != nil {
			return fmt.Errorf("failed to get audit history: %w", err)
		}

		if len(events) > limit {
			extraItem := events[limit]
			nextCursor = &types.EventCursor{
				OccurredAt: extraItem.OccurredAt,
				Sequence:   extraItem.Sequence,
			}
			events = events[:limit]
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return events, nextCursor, nil
}
