package enums

import "fmt"

// RuleType identifies a batch-scoped business rule for submitted items.
type RuleType string

const (
	RuleTypeMaxQty            RuleType = "max_qty"
	RuleTypeCannotDuplicate   RuleType = "cannot_duplicate"
	RuleTypeMutuallyExclusive RuleType = "mutually_exclusive"
	RuleTypeRequires          RuleType = "requires"
)

var validRuleTypes = []RuleType{
	RuleTypeMaxQty,
	RuleTypeCannotDuplicate,
	RuleTypeMutuallyExclusive,
	RuleTypeRequires,
}

// String implements fmt.Stringer.
func (r RuleType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RuleType.
func (r RuleType) IsValid() bool {
	for _, candidate := range validRuleTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRuleType converts raw input into a RuleType.
func ParseRuleType(value string) (RuleType, error) {
	for _, candidate := range validRuleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule type %q", value)
}
