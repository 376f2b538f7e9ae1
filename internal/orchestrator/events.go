package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
	"github.com/veriline/veriline-backend/pkg/outbox/payloads"
)

// eventVersion is the wire version every line item event is emitted at.
const eventVersion = 1

// Event is one domain event driving a line item transition. Events are
// idempotent triggers: replaying one whose outcome is already applied is a
// no-op success.
type Event interface {
	LineItemID() uuid.UUID
	Type() enums.OutboxEventType
	wirePayload() any
}

// Validated carries a pre-validation verdict.
type Validated struct {
	ItemID  uuid.UUID
	Verdict enums.Verdict
	Score   float64
	Reasons []string
	Source  enums.ValidationSource
}

func (e Validated) LineItemID() uuid.UUID       { return e.ItemID }
func (e Validated) Type() enums.OutboxEventType { return enums.EventLineItemValidated }
func (e Validated) wirePayload() any {
	return payloads.ValidatedEvent{
		LineItemID: e.ItemID,
		Verdict:    e.Verdict,
		Score:      e.Score,
		Reasons:    e.Reasons,
		Source:     e.Source,
	}
}

// Matched carries a successful catalog resolution.
type Matched struct {
	ItemID          uuid.UUID
	CanonicalItemID uuid.UUID
	Confidence      float64
	Kind            enums.MatchKind
}

func (e Matched) LineItemID() uuid.UUID       { return e.ItemID }
func (e Matched) Type() enums.OutboxEventType { return enums.EventLineItemMatched }
func (e Matched) wirePayload() any {
	return payloads.MatchedEvent{
		LineItemID:      e.ItemID,
		CanonicalItemID: e.CanonicalItemID,
		Confidence:      e.Confidence,
		Kind:            e.Kind,
	}
}

// MatchMiss reports that the resolver found no catalog entry.
type MatchMiss struct {
	ItemID   uuid.UUID
	ItemName string
}

func (e MatchMiss) LineItemID() uuid.UUID       { return e.ItemID }
func (e MatchMiss) Type() enums.OutboxEventType { return enums.EventLineItemMatchMiss }
func (e MatchMiss) wirePayload() any {
	return payloads.MatchMissEvent{LineItemID: e.ItemID, ItemName: e.ItemName}
}

// WebIngested reports a completed vendor enrichment pass.
type WebIngested struct {
	ItemID       uuid.UUID
	SourcesCount int
	ItemsAdded   int
}

func (e WebIngested) LineItemID() uuid.UUID       { return e.ItemID }
func (e WebIngested) Type() enums.OutboxEventType { return enums.EventLineItemWebIngested }
func (e WebIngested) wirePayload() any {
	return payloads.WebIngestedEvent{
		LineItemID:   e.ItemID,
		SourcesCount: e.SourcesCount,
		ItemsAdded:   e.ItemsAdded,
	}
}

// PriceValidated reports the price band check outcome.
type PriceValidated struct {
	ItemID    uuid.UUID
	Validated bool
	Outcome   enums.PriceOutcome
	Note      string
}

func (e PriceValidated) LineItemID() uuid.UUID       { return e.ItemID }
func (e PriceValidated) Type() enums.OutboxEventType { return enums.EventLineItemPriceValidated }
func (e PriceValidated) wirePayload() any {
	return payloads.PriceValidatedEvent{
		LineItemID: e.ItemID,
		Validated:  e.Validated,
		Outcome:    e.Outcome,
		Note:       e.Note,
	}
}

// ExplanationDecided carries the human or agent resolution for an item in
// needs_explanation.
type ExplanationDecided struct {
	ItemID   uuid.UUID
	Decision enums.ExplanationDecision
	Note     string
}

func (e ExplanationDecided) LineItemID() uuid.UUID       { return e.ItemID }
func (e ExplanationDecided) Type() enums.OutboxEventType { return enums.EventExplanationDecided }
func (e ExplanationDecided) wirePayload() any {
	return payloads.ExplanationDecidedEvent{
		LineItemID: e.ItemID,
		Decision:   e.Decision,
		Note:       e.Note,
	}
}

var eventDecoders = map[enums.OutboxEventType]func(json.RawMessage) (Event, error){
	enums.EventLineItemValidated: func(raw json.RawMessage) (Event, error) {
		var p payloads.ValidatedEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return Validated{ItemID: p.LineItemID, Verdict: p.Verdict, Score: p.Score, Reasons: p.Reasons, Source: p.Source}, nil
	},
	enums.EventLineItemMatched: func(raw json.RawMessage) (Event, error) {
		var p payloads.MatchedEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return Matched{ItemID: p.LineItemID, CanonicalItemID: p.CanonicalItemID, Confidence: p.Confidence, Kind: p.Kind}, nil
	},
	enums.EventLineItemMatchMiss: func(raw json.RawMessage) (Event, error) {
		var p payloads.MatchMissEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return MatchMiss{ItemID: p.LineItemID, ItemName: p.ItemName}, nil
	},
	enums.EventLineItemWebIngested: func(raw json.RawMessage) (Event, error) {
		var p payloads.WebIngestedEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return WebIngested{ItemID: p.LineItemID, SourcesCount: p.SourcesCount, ItemsAdded: p.ItemsAdded}, nil
	},
	enums.EventLineItemPriceValidated: func(raw json.RawMessage) (Event, error) {
		var p payloads.PriceValidatedEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return PriceValidated{ItemID: p.LineItemID, Validated: p.Validated, Outcome: p.Outcome, Note: p.Note}, nil
	},
	enums.EventExplanationDecided: func(raw json.RawMessage) (Event, error) {
		var p payloads.ExplanationDecidedEvent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return ExplanationDecided{ItemID: p.LineItemID, Decision: p.Decision, Note: p.Note}, nil
	},
}

// DecodeEvent turns a wire event into its typed form. Unknown types and
// versions return CodeUnknownEvent so callers can treat the event as
// rejected without mutating anything.
func DecodeEvent(eventType string, version int, payload json.RawMessage) (Event, error) {
	parsed, err := enums.ParseOutboxEventType(eventType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownEvent, err, "unknown event type")
	}
	if version != eventVersion {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownEvent, fmt.Sprintf("unsupported version %d for %s", version, parsed))
	}
	decode, ok := eventDecoders[parsed]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownEvent, fmt.Sprintf("no decoder for %s", parsed))
	}
	event, err := decode(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownEvent, err, "malformed event payload")
	}
	return event, nil
}
