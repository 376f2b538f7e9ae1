package payloads

import (
	"github.com/google/uuid"

	"github.com/veriline/veriline-backend/pkg/enums"
)

// ValidatedEvent carries the pre-validation outcome for a line item.
type ValidatedEvent struct {
	LineItemID uuid.UUID              `json:"line_item_id"`
	Verdict    enums.Verdict          `json:"verdict"`
	Score      float64                `json:"score"`
	Reasons    []string               `json:"reasons,omitempty"`
	Source     enums.ValidationSource `json:"source"`
}

// MatchedEvent reports a successful catalog resolution.
type MatchedEvent struct {
	LineItemID      uuid.UUID       `json:"line_item_id"`
	CanonicalItemID uuid.UUID       `json:"canonical_item_id"`
	Confidence      float64         `json:"confidence"`
	Kind            enums.MatchKind `json:"kind"`
}

// MatchMissEvent reports that no catalog entry resolved for the item name.
type MatchMissEvent struct {
	LineItemID uuid.UUID `json:"line_item_id"`
	ItemName   string    `json:"item_name,omitempty"`
}

// WebIngestedEvent reports a completed vendor enrichment pass.
type WebIngestedEvent struct {
	LineItemID   uuid.UUID `json:"line_item_id"`
	SourcesCount int       `json:"sources_count"`
	ItemsAdded   int       `json:"items_added"`
}

// PriceValidatedEvent reports the price band check outcome.
type PriceValidatedEvent struct {
	LineItemID uuid.UUID          `json:"line_item_id"`
	Validated  bool               `json:"validated"`
	Outcome    enums.PriceOutcome `json:"outcome"`
	Note       string             `json:"note,omitempty"`
}

// ExplanationDecidedEvent reports the human or agent resolution for an item
// that needed an explanation.
type ExplanationDecidedEvent struct {
	LineItemID uuid.UUID                 `json:"line_item_id"`
	Decision   enums.ExplanationDecision `json:"decision"`
	Note       string                    `json:"note,omitempty"`
}
