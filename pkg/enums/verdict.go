package enums

import "fmt"

// Verdict is the outcome of pre-validation for a line item.
type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictRejected    Verdict = "rejected"
	VerdictNeedsReview Verdict = "needs_review"
)

var validVerdicts = []Verdict{
	VerdictApproved,
	VerdictRejected,
	VerdictNeedsReview,
}

// String implements fmt.Stringer.
func (v Verdict) String() string {
	return string(v)
}

// IsValid reports whether the value is a known Verdict.
func (v Verdict) IsValid() bool {
	for _, candidate := range validVerdicts {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVerdict converts raw input into a Verdict.
func ParseVerdict(value string) (Verdict, error) {
	for _, candidate := range validVerdicts {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verdict %q", value)
}
