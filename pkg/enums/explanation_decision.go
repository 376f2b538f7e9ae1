package enums

import "fmt"

// ExplanationDecision is the human/agent resolution for an item needing explanation.
type ExplanationDecision string

const (
	ExplanationDecisionApprove ExplanationDecision = "approve"
	ExplanationDecisionDeny    ExplanationDecision = "deny"
)

var validExplanationDecisions = []ExplanationDecision{
	ExplanationDecisionApprove,
	ExplanationDecisionDeny,
}

// String implements fmt.Stringer.
func (e ExplanationDecision) String() string {
	return string(e)
}

// IsValid reports whether the value is a known ExplanationDecision.
func (e ExplanationDecision) IsValid() bool {
	for _, candidate := range validExplanationDecisions {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseExplanationDecision converts raw input into an ExplanationDecision.
func ParseExplanationDecision(value string) (ExplanationDecision, error) {
	for _, candidate := range validExplanationDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid explanation decision %q", value)
}
