package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Score bounds enforced on every reputation row.
const (
	ScoreFloor   = 300
	ScoreCeiling = 850
)

// MemberReputation tracks one member's standing within a single community.
// Rows are owned exclusively by the scoring engine and mutated only through
// the batch processor's apply-event transaction.
type MemberReputation struct {
	bun.BaseModel `bun:"table:member_reputations"`

	CommunityID uint64    `bun:",pk"`       // Community the score is scoped to
	UserID      uint64    `bun:",pk"`       // Community-scoped member identifier
	Score       int       `bun:",notnull"`  // Current score, always within [300,850]
	TotalEvents int64     `bun:",notnull"`  // Monotonically non-decreasing event counter
	LastEventAt time.Time `bun:",nullzero"` // When the most recent event was applied
}

// GlobalReputation mirrors MemberReputation for a hub-scoped identity,
// aggregating events across all communities that opt into global scoring.
type GlobalReputation struct {
	bun.BaseModel `bun:"table:global_reputations"`

	IdentityID  uint64    `bun:",pk"`       // Stable hub-scoped identity
	Score       int       `bun:",notnull"`  // Current score, always within [300,850]
	TotalEvents int64     `bun:",notnull"`  // Monotonically non-decreasing event counter
	LastEventAt time.Time `bun:",nullzero"` // When the most recent event was applied
}

// LeaderboardEntry is one row of a community leaderboard query,
// ordered by score descending then earliest last event.
type LeaderboardEntry struct {
	UserID      uint64    `json:"user_id"`
	Score       int       `json:"score"`
	TotalEvents int64     `json:"total_events"`
	LastEventAt time.Time `json:"last_event_at"`
}

// LeaderboardCursor marks a stable pagination position in leaderboard results.
type LeaderboardCursor struct {
	Score       int       `json:"score"`
	LastEventAt time.Time `json:"last_event_at"`
	UserID      uint64    `json:"user_id"`
}

// AtRiskMember is a member whose score sits above the auto-ban threshold
// but within the community's configured at-risk margin.
type AtRiskMember struct {
	UserID    uint64 `json:"user_id"`
	Score     int    `json:"score"`
	Threshold int    `json:"threshold"`
	Margin    int    `json:"margin"`
}
