package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/hubwatch/reputeer/internal/database/types/enum"
)

var (
	// ErrBatchTooLarge is the only top-level batch failure; everything else
	// is isolated to the offending event.
	ErrBatchTooLarge = errors.New("batch exceeds the maximum event count")

	ErrMissingSubject   = errors.New("event is missing community or user identifier")
	ErrMissingEventType = errors.New("event is missing event type")
	ErrMalformedMeta    = errors.New("event metadata is malformed")
)

// Metadata limits enforced at the boundary. The bag itself stays opaque to
// the scoring core.
const (
	maxMetadataEntries     = 32
	maxMetadataValueLength = 1024
)

// Event is one platform activity submitted for scoring.
type Event struct {
	CommunityID uint64            `json:"community_id"`
	UserID      uint64            `json:"user_id"`
	IdentityID  uint64            `json:"global_identity_id"`
	EventType   string            `json:"event_type"`
	Reason      string            `json:"reason"`
	Metadata    map[string]string `json:"metadata"`
	DedupKey    string            `json:"dedup_key"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Validate rejects malformed events before any side effects occur.
func (e *Event) Validate() error {
	if e.CommunityID == 0 || e.UserID == 0 {
		return ErrMissingSubject
	}

	if e.EventType == "" {
		return ErrMissingEventType
	}

	if len(e.Metadata) > maxMetadataEntries {
		return fmt.Errorf("%w: %d entries", ErrMalformedMeta, len(e.Metadata))
	}

	for key, value := range e.Metadata {
		if key == "" {
			return fmt.Errorf("%w: empty key", ErrMalformedMeta)
		}

		if len(value) > maxMetadataValueLength {
			return fmt.Errorf("%w: value for %q too long", ErrMalformedMeta, key)
		}
	}

	return nil
}

// EventResult reports the outcome of one submitted event. Callers always
// receive exactly one result per event, in submission order.
type EventResult struct {
	Status      enum.EventStatus `json:"status"`
	ScoreBefore int              `json:"score_before"`
	ScoreAfter  int              `json:"score_after"`
	Tier        enum.Tier        `json:"tier"`
	Detail      string           `json:"detail,omitempty"`
}

func rejectedResult(reason string) *EventResult {
	return &EventResult{
		Status: enum.EventStatusRejected,
		Detail: reason,
	}
}

func errorResult(reason string) *EventResult {
	return &EventResult{
		Status: enum.EventStatusError,
		Detail: reason,
	}
}
