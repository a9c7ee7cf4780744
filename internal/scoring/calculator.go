package scoring

import (
	"math"

	"github.com/hubwatch/reputeer/internal/database/types"
	"github.com/hubwatch/reputeer/internal/database/types/enum"
)

// Tier cutoffs, highest first. Bands are total and ordered so a higher
// score can never map to a lower tier.
const (
	tierExceptionalMin = 800
	tierVeryGoodMin    = 740
	tierGoodMin        = 670
	tierFairMin        = 580
)

// Result is the outcome of one score computation.
type Result struct {
	NewScore int
	Tier     enum.Tier
	Clamped  bool
}

// Compute applies a resolved weight to the current score and clamps the
// result into [300,850]. Pure function: identical inputs always produce
// identical outputs, and there are no failure modes.
func Compute(current int, weight types.EventWeight) Result {
	unclamped := float64(current) + weight.Delta()
	rounded := int(math.Round(unclamped))

	newScore := rounded
	if newScore < types.ScoreFloor {
		newScore = types.ScoreFloor
	} else if newScore > types.ScoreCeiling {
		newScore = types.ScoreCeiling
	}

	return Result{
		NewScore: newScore,
		Tier:     TierFor(newScore),
		Clamped:  newScore != rounded,
	}
}

// TierFor maps a score to its named band.
func TierFor(score int) enum.Tier {
	switch {
	case score >= tierExceptionalMin:
		return enum.TierExceptional
	case score >= tierVeryGoodMin:
		return enum.TierVeryGood
	case score >= tierGoodMin:
		return enum.TierGood
	case score >= tierFairMin:
		return enum.TierFair
	default:
		return enum.TierPoor
	}
}
