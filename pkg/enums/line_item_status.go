package enums

import "fmt"

// LineItemStatus tracks a line item through the validation pipeline.
type LineItemStatus string

const (
	LineItemStatusNew                LineItemStatus = "new"
	LineItemStatusValidationRejected LineItemStatus = "validation_rejected"
	LineItemStatusAwaitingMatch      LineItemStatus = "awaiting_match"
	LineItemStatusAwaitingIngest     LineItemStatus = "awaiting_ingest"
	LineItemStatusMatched            LineItemStatus = "matched"
	LineItemStatusPriceValidated     LineItemStatus = "price_validated"
	LineItemStatusNeedsExplanation   LineItemStatus = "needs_explanation"
	LineItemStatusReadyForSubmission LineItemStatus = "ready_for_submission"
	LineItemStatusDenied             LineItemStatus = "denied"
)

var validLineItemStatuses = []LineItemStatus{
	LineItemStatusNew,
	LineItemStatusValidationRejected,
	LineItemStatusAwaitingMatch,
	LineItemStatusAwaitingIngest,
	LineItemStatusMatched,
	LineItemStatusPriceValidated,
	LineItemStatusNeedsExplanation,
	LineItemStatusReadyForSubmission,
	LineItemStatusDenied,
}

// String implements fmt.Stringer.
func (l LineItemStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LineItemStatus.
func (l LineItemStatus) IsValid() bool {
	for _, candidate := range validLineItemStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further pipeline transitions exist for the status.
func (l LineItemStatus) IsTerminal() bool {
	switch l {
	case LineItemStatusValidationRejected, LineItemStatusReadyForSubmission, LineItemStatusDenied:
		return true
	}
	return false
}

// ParseLineItemStatus converts raw input into a LineItemStatus.
func ParseLineItemStatus(value string) (LineItemStatus, error) {
	for _, candidate := range validLineItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid line item status %q", value)
}
