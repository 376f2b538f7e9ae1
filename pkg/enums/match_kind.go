package enums

import "fmt"

// MatchKind records how a line item was resolved against the catalog.
type MatchKind string

const (
	MatchKindExact   MatchKind = "exact"
	MatchKindSynonym MatchKind = "synonym"
	MatchKindFuzzy   MatchKind = "fuzzy"
	MatchKindNone    MatchKind = "none"
)

var validMatchKinds = []MatchKind{
	MatchKindExact,
	MatchKindSynonym,
	MatchKindFuzzy,
	MatchKindNone,
}

// String implements fmt.Stringer.
func (m MatchKind) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MatchKind.
func (m MatchKind) IsValid() bool {
	for _, candidate := range validMatchKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMatchKind converts raw input into a MatchKind.
func ParseMatchKind(value string) (MatchKind, error) {
	for _, candidate := range validMatchKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid match kind %q", value)
}
