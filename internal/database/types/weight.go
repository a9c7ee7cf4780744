package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrEmptyWeightTable  = errors.New("weight table has no entries")
	ErrInvalidEventType  = errors.New("weight table contains an empty event type")
	ErrWeightOutOfRange  = errors.New("weight is outside the allowed range")
	ErrInvalidMultiplier = errors.New("multiplier must be positive")
)

// Widest delta a single weighted event may request before clamping.
const maxAbsoluteWeight = 550

// EventWeight is the resolved scoring contribution for one event type.
type EventWeight struct {
	Weight     float64 `json:"weight"`
	Multiplier float64 `json:"multiplier"`
}

// Delta returns the raw score change before clamping.
func (w EventWeight) Delta() float64 {
	return w.Weight * w.Multiplier
}

// WeightConfig stores the event-type weight table for a community.
// The row with community ID 0 holds the global default table; any other row
// is a premium community override.
type WeightConfig struct {
	bun.BaseModel `bun:"table:weight_configs"`

	CommunityID uint64                 `bun:",pk"`         // 0 for the global default table
	Weights     map[string]EventWeight `bun:",type:jsonb"` // event_type -> weight/multiplier
	UpdatedAt   time.Time              `bun:",notnull"`    // Implicit version of the table
}

// Validate rejects malformed weight tables at the boundary so scoring
// never encounters an invalid entry.
func (c *WeightConfig) Validate() error {
	if len(c.Weights) == 0 {
		return ErrEmptyWeightTable
	}

	for eventType, weight := range c.Weights {
		if eventType == "" {
			return ErrInvalidEventType
		}

		if weight.Weight < -maxAbsoluteWeight || weight.Weight > maxAbsoluteWeight {
			return fmt.Errorf("%w: %q has weight %f", ErrWeightOutOfRange, eventType, weight.Weight)
		}

		if weight.Multiplier <= 0 {
			return fmt.Errorf("%w: %q has multiplier %f", ErrInvalidMultiplier, eventType, weight.Multiplier)
		}
	}

	return nil
}
