package types

import "time"

// ScoreMutation describes one score change to apply atomically.
// Compute is a pure function from a current score to the clamped new score;
// the store calls it separately for the community row and, when an identity
// is present, the global row, so each clamps against its own current value.
type ScoreMutation struct {
	CommunityID   uint64
	UserID        uint64
	IdentityID    uint64
	EventType     string
	Reason        string
	Metadata      map[string]string
	DedupKey      string
	OccurredAt    time.Time
	StartingScore int
	Compute       func(current int) (newScore int, clamped bool)
}
