package enum

// Tier represents the named reputation band a score falls into.
type Tier int

const (
	// TierPoor covers scores below 580.
	TierPoor Tier = iota
	// TierFair covers scores from 580 to 669.
	TierFair
	// TierGood covers scores from 670 to 739.
	TierGood
	// TierVeryGood covers scores from 740 to 799.
	TierVeryGood
	// TierExceptional covers scores of 800 and above.
	TierExceptional
)

var tierNames = map[Tier]string{
	TierPoor:        "poor",
	TierFair:        "fair",
	TierGood:        "good",
	TierVeryGood:    "very_good",
	TierExceptional: "exceptional",
}

// String returns the lowercase name of the tier.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}

	return "unknown"
}

// MarshalText implements encoding.TextMarshaler for JSON responses.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
