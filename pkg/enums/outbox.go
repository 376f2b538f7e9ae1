package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateLineItem OutboxAggregateType = "line_item"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLineItem,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventLineItemValidated      OutboxEventType = "line_item_validated"
	EventLineItemMatched        OutboxEventType = "line_item_matched"
	EventLineItemMatchMiss      OutboxEventType = "line_item_match_miss"
	EventLineItemWebIngested    OutboxEventType = "line_item_web_ingested"
	EventLineItemPriceValidated OutboxEventType = "line_item_price_validated"
	EventExplanationDecided     OutboxEventType = "line_item_explanation_decided"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLineItemValidated,
	EventLineItemMatched,
	EventLineItemMatchMiss,
	EventLineItemWebIngested,
	EventLineItemPriceValidated,
	EventExplanationDecided,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
