package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrThresholdOutOfRange = errors.New("auto-ban threshold is outside the score range")
	ErrNegativeMargin      = errors.New("at-risk margin must not be negative")
	ErrStartOutOfRange     = errors.New("starting score is outside the score range")
)

// DefaultStartingScore is assigned to members on their first scored event
// unless the community policy overrides it.
const DefaultStartingScore = 600

// ReputationPolicy holds a community's score-driven enforcement settings.
type ReputationPolicy struct {
	bun.BaseModel `bun:"table:reputation_policies"`

	CommunityID      uint64    `bun:",pk"`
	AutoBanEnabled   bool      `bun:",notnull"` // Emit suspend directives on threshold crossings
	AutoBanThreshold int       `bun:",notnull"` // Score below which members are suspended
	AtRiskMargin     int       `bun:",notnull"` // Band above the threshold flagged as at-risk
	StartingScore    int       `bun:",notnull"` // Score assigned to first-seen members
	CustomWeights    bool      `bun:",notnull"` // Premium entitlement for weight overrides
	UpdatedAt        time.Time `bun:",notnull"`
}

// DefaultPolicy returns the policy used for communities that never
// configured one: scoring on, enforcement off.
func DefaultPolicy(communityID uint64) *ReputationPolicy {
	return &ReputationPolicy{
		CommunityID:      communityID,
		AutoBanEnabled:   false,
		AutoBanThreshold: ScoreFloor,
		AtRiskMargin:     50,
		StartingScore:    DefaultStartingScore,
		UpdatedAt:        time.Now(),
	}
}

// Validate rejects malformed policies at the boundary.
func (p *ReputationPolicy) Validate() error {
	if p.AutoBanThreshold < ScoreFloor || p.AutoBanThreshold > ScoreCeiling {
		return fmt.Errorf("%w: %d", ErrThresholdOutOfRange, p.AutoBanThreshold)
	}

	if p.AtRiskMargin < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeMargin, p.AtRiskMargin)
	}

	if p.StartingScore < ScoreFloor || p.StartingScore > ScoreCeiling {
		return fmt.Errorf("%w: %d", ErrStartOutOfRange, p.StartingScore)
	}

	return nil
}
