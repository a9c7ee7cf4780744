package types

import (
	"time"

	"github.com/uptrace/bun"
)

// ReputationEvent is the immutable audit record of one score mutation.
// Rows are append-only; there is no update or delete path. They form the
// authoritative history for leaderboards, disputes and compliance review.
type ReputationEvent struct {
	bun.BaseModel `bun:"table:reputation_events"`

	Sequence    int64             `bun:",pk,autoincrement"` // Insertion order within the audit log
	CommunityID uint64            `bun:",notnull"`          // Community the event was scored in
	UserID      uint64            `bun:",notnull"`          // Community-scoped member identifier
	IdentityID  uint64            `bun:",nullzero"`         // Hub-scoped identity (0 when community-only)
	EventType   string            `bun:",notnull"`          // Upstream activity type (subscription, raid, ...)
	ScoreChange int               `bun:",notnull"`          // Applied delta after clamping
	ScoreBefore int               `bun:",notnull"`          // Member score immediately before the mutation
	ScoreAfter  int               `bun:",notnull"`          // Member score immediately after the mutation
	Reason      string            `bun:",type:text"`        // Caller-supplied reason for the event
	Metadata    map[string]string `bun:",type:jsonb"`       // Opaque key/value bag, never inspected by scoring
	Clamped     bool              `bun:",notnull"`          // True when the raw change exceeded [300,850]
	DedupKey    string            `bun:",nullzero"`         // Optional idempotency key supplied by the caller
	OccurredAt  time.Time         `bun:",notnull"`          // When the activity happened upstream
}

// EventFilter narrows audit history queries.
// Zero values mean the dimension is not filtered.
type EventFilter struct {
	CommunityID uint64
	UserID      uint64
	IdentityID  uint64
	EventType   string
	StartTime   time.Time
	EndTime     time.Time
}

// EventCursor marks a stable pagination position in audit history results.
type EventCursor struct {
	OccurredAt time.Time `json:"occurred_at"`
	Sequence   int64     `json:"sequence"`
}
