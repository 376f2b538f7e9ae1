package enums

import "fmt"

// PriceOutcome classifies a unit price against the known price band.
type PriceOutcome string

const (
	PriceOutcomeWithinRange PriceOutcome = "within_range"
	PriceOutcomeCheaper     PriceOutcome = "cheaper"
	PriceOutcomeCostlier    PriceOutcome = "costlier"
	PriceOutcomeNoBand      PriceOutcome = "no_band"
)

var validPriceOutcomes = []PriceOutcome{
	PriceOutcomeWithinRange,
	PriceOutcomeCheaper,
	PriceOutcomeCostlier,
	PriceOutcomeNoBand,
}

// String implements fmt.Stringer.
func (p PriceOutcome) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PriceOutcome.
func (p PriceOutcome) IsValid() bool {
	for _, candidate := range validPriceOutcomes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePriceOutcome converts raw input into a PriceOutcome.
func ParsePriceOutcome(value string) (PriceOutcome, error) {
	for _, candidate := range validPriceOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid price outcome %q", value)
}
