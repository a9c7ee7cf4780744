package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hubwatch/reputeer/internal/database/dbretry"
	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

var (
	ErrMemberNotFound  = errors.New("member reputation not found")
	ErrDuplicateEvent  = errors.New("event with this dedup key was already applied")
	ErrMissingCompute  = errors.New("score mutation has no compute function")
	ErrInvalidStarting = errors.New("score mutation has an out-of-range starting score")
)

// ReputationModel handles reputation rows for community members and
// hub-scoped identities. Every mutation goes through ApplyEvent so the
// score row and its audit record are committed as one unit.
type ReputationModel struct {
	db     *bun.DB
	audit  *AuditModel
	logger *zap.Logger
}

// NewReputation creates a repository with database access for reputation rows.
func NewReputation(db *bun.DB, audit *AuditModel, logger *zap.Logger) *ReputationModel {
	return &ReputationModel{
		db:     db,
		audit:  audit,
		logger: logger.Named("db_reputation"),
	}
}

// ApplyEvent applies one score mutation atomically: the member row is read
// under a row-level lock, recomputed, written back together with the global
// row (when an identity is present) and exactly one audit record. A failure
// anywhere rolls the whole unit back.
func (r *ReputationModel) ApplyEvent(
	ctx context.Context, mutation *types.ScoreMutation,
) (*types.ReputationEvent, error) {
	if mutation.Compute == nil {
		return nil, ErrMissingCompute
	}

	if mutation.StartingScore < types.ScoreFloor || mutation.StartingScore > types.ScoreCeiling {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStarting, mutation.StartingScore)
	}

	var event *types.ReputationEvent

	err := dbretry.Transaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		member, created, err := r.lockMember(ctx, tx, mutation)
		if err != nil {
			return err
		}

		before := member.Score
		after, clamped := mutation.Compute(before)

		member.Score = after
		member.TotalEvents++
		member.LastEventAt = mutation.OccurredAt

		if created {
			if _, err := tx.NewInsert().Model(member).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert member reputation: %w", err)
			}
		} else {
			_, err := tx.NewUpdate().Model(member).
				Column("score", "total_events", "last_event_at").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update member reputation: %w", err)
			}
		}

		if mutation.IdentityID != 0 {
			if err := r.applyGlobal(ctx, tx, mutation); err != nil {
				return err
			}
		}

		event = &types.ReputationEvent{
			CommunityID: mutation.CommunityID,
			UserID:      mutation.UserID,
			IdentityID:  mutation.IdentityID,
			EventType:   mutation.EventType,
			ScoreChange: after - before,
			ScoreBefore: before,
			ScoreAfter:  after,
			Reason:      mutation.Reason,
			Metadata:    mutation.Metadata,
			Clamped:     clamped,
			DedupKey:    mutation.DedupKey,
			OccurredAt:  mutation.OccurredAt,
		}

		return r.audit.Append(ctx, tx, event)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEvent
		}

		return nil, err
	}

	return event, nil
}

// lockMember reads the member row under FOR UPDATE, or prepares a fresh row
// at the policy's starting score when the member has never been scored.
func (r *ReputationModel) lockMember(
	ctx context.Context, tx bun.Tx, mutation *types.ScoreMutation,
) (*types.MemberReputation, bool, error) {
	member := new(types.MemberReputation)

	err := tx.NewSelect().Model(member).
		Where("community_id = ? AND user_id = ?", mutation.CommunityID, mutation.UserID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to lock member reputation: %w", err)
		}

		member = &types.MemberReputation{
			CommunityID: mutation.CommunityID,
			UserID:      mutation.UserID,
			Score:       mutation.StartingScore,
		}

		return member, true, nil
	}

	return member, false, nil
}

// applyGlobal mirrors the mutation onto the hub-scoped identity row,
// clamping against the global row's own current score.
func (r *ReputationModel) applyGlobal(
	ctx context.Context, tx bun.Tx, mutation *types.ScoreMutation,
) error {
	global := new(types.GlobalReputation)

	err := tx.NewSelect().Model(global).
		Where("identity_id = ?", mutation.IdentityID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock global reputation: %w", err)
		}

		newScore, _ := mutation.Compute(mutation.StartingScore)
		global = &types.GlobalReputation{
			IdentityID:  mutation.IdentityID,
			Score:       newScore,
			TotalEvents: 1,
			LastEventAt: mutation.OccurredAt,
		}

		if _, err := tx.NewInsert().Model(global).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert global reputation: %w", err)
		}

		return nil
	}

	newScore, _ := mutation.Compute(global.Score)
	global.Score = newScore
	global.TotalEvents++
	global.LastEventAt = mutation.OccurredAt

	_, err = tx.NewUpdate().Model(global).
		Column("score", "total_events", "last_event_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update global reputation: %w", err)
	}

	return nil
}

// GetMember retrieves one member's reputation row.
func (r *ReputationModel) GetMember(
	ctx context.Context, communityID, userID uint64,
) (*types.MemberReputation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.MemberReputation, error) {
		member := new(types.MemberReputation)

		err := r.db.NewSelect().Model(member).
			Where("community_id = ? AND user_id = ?", communityID, userID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrMemberNotFound
			}

			return nil, fmt.Errorf("failed to get member reputation: %w", err)
		}

		return member, nil
	})
}

// GetGlobal retrieves one hub-scoped identity's reputation row.
func (r *ReputationModel) GetGlobal(
	ctx context.Context, identityID uint64,
) (*types.GlobalReputation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.GlobalReputation, error) {
		global := new(types.GlobalReputation)

		err := r.db.NewSelect().Model(global).
			Where("identity_id = ?", identityID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrMemberNotFound
			}

			return nil, fmt.Errorf("failed to get global reputation: %w", err)
		}

		return global, nil
	})
}

// GetLeaderboard returns the community's top members by score descending,
// breaking ties by earliest last event then user ID for a stable order.
func (r *ReputationModel) GetLeaderboard(
	ctx context.Context, communityID uint64, cursor *types.LeaderboardCursor, limit int,
) ([]*types.LeaderboardEntry, *types.LeaderboardCursor, error) {
	var entries []*types.LeaderboardEntry
	var nextCursor *types.LeaderboardCursor

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		query := r.db.NewSelect().
			Model((*types.MemberReputation)(nil)).
			Column("user_id", "score", "total_events", "last_event_at").
			Where("community_id = ?", communityID)

		// The cursor marks the first row of the next page, so the final
		// tie-break is inclusive
		if cursor != nil {
			query = query.Where(
				"(score < ?) OR (score = ? AND (last_event_at > ? OR (last_event_at = ? AND user_id >= ?)))",
				cursor.Score, cursor.Score, cursor.LastEventAt, cursor.LastEventAt, cursor.UserID)
		}

		query = query.Order("score DESC", "last_event_at ASC", "user_id ASC").
			Limit(limit + 1)

		if err := query.Scan(ctx, &entries); err != nil {
			return fmt.Errorf("failed to get leaderboard: %w", err)
		}

		if len(entries) > limit {
			extraItem := entries[limit]
			nextCursor = &types.LeaderboardCursor{
				Score:       extraItem.Score,
				LastEventAt: extraItem.LastEventAt,
				UserID:      extraItem.UserID,
			}
			entries = entries[:limit]
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return entries, nextCursor, nil
}

// GetAtRiskMembers lists members whose score is above the threshold but
// within the given margin of it, closest to the threshold first.
func (r *ReputationModel) GetAtRiskMembers(
	ctx context.Context, communityID uint64, threshold, margin, limit int,
) ([]*types.AtRiskMember, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.AtRiskMember, error) {
		var members []*types.AtRiskMember

		err := r.db.NewSelect().
			Model((*types.MemberReputation)(nil)).
			Column("user_id", "score").
			Where("community_id = ?", communityID).
			Where("score >= ?", threshold).
			Where("score < ?", threshold+margin).
			Order("score ASC", "user_id ASC").
			Limit(limit).
			Scan(ctx, &members)
		if err != nil {
			return nil, fmt.Errorf("failed to get at-risk members: %w", err)
		}

		for _, member := range members {
			member.Threshold = threshold
			member.Margin = margin
		}

		return members, nil
	})
}

// isUniqueViolation reports whether the error is the dedup index rejecting
// a redelivered event.
func isUniqueViolation(err error) bool {
	var pgerr *pgdriver.Error
	return errors.As(err, &pgerr) &&
		pgerr.Field('C') == "23505" &&
		pgerr.Field('n') == "idx_reputation_events_dedup"
}
