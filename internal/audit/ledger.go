package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/veriline/veriline-backend/pkg/enums"
	"github.com/veriline/veriline-backend/pkg/logger"
	"github.com/veriline/veriline-backend/pkg/outbox/payloads"
)

// Envelope is one pipeline event offered to the ledger.
type Envelope struct {
	EventID    string
	EventType  enums.OutboxEventType
	OccurredAt time.Time
	Payload    json.RawMessage
}

type rowInserter interface {
	Insert(ctx context.Context, row DecisionRow) error
}

// Ledger turns pipeline events into decision rows. Every line item event is
// recorded; unknown event types are skipped rather than failed so the
// subscription can carry newer event versions.
type Ledger struct {
	writer rowInserter
	logg   *logger.Logger
}

func NewLedger(writer rowInserter, logg *logger.Logger) (*Ledger, error) {
	if writer == nil {
		return nil, errors.New("ledger writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Ledger{writer: writer, logg: logg}, nil
}

// Handle records one event in the ledger.
func (l *Ledger) Handle(ctx context.Context, envelope Envelope) error {
	row, ok, err := buildRow(envelope)
	if err != nil {
		return err
	}
	if !ok {
		l.logg.Warn(l.logg.WithField(ctx, "event_type", string(envelope.EventType)), "no ledger row for event type")
		return nil
	}
	return l.writer.Insert(ctx, row)
}

func buildRow(envelope Envelope) (DecisionRow, bool, error) {
	row := DecisionRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		Payload:    encodeJSON(envelope.Payload),
	}

	switch envelope.EventType {
	case enums.EventLineItemValidated:
		var p payloads.ValidatedEvent
		if err := decode(envelope.Payload, &p); err != nil {
			return DecisionRow{}, false, err
		}
		row.LineItemID = p.LineItemID.String()
		row.Verdict = strPtr(string(p.Verdict))
		row.Score = &p.Score
		row.ValidationSrc = strPtr(string(p.Source))
	case enums.EventLineItemMatched:
		var p payloads.MatchedEvent
		if err := decode(envelope.Payload, &p); err != nil {
			return DecisionRow{}, false, err
		}
		row.LineItemID = p.LineItemID.String()
		row.MatchKind = strPtr(string(p.Kind))
		row.CanonicalItemID = strPtr(p.CanonicalItemID.String())
		row.Confidence = &p.Confidence
	case enums.EventLineItemMatchMiss:
		var p payloads.MatchMissEvent
		if err := decode(envelope.Payload, &p); err != nil {
			return DecisionRow{}, false, err
		}
		row.LineItemID = p.LineItemID.String()
	case enums.EventLineItemWebIngested:
		var p payloads.WebIngestedEvent
		if err := decode(envelope.Payload, &p); err != nil {
			return DecisionRow{}, false, err
		}
		row.LineItemID = p.LineItemID.String()
		row.SourcesCount = int64Ptr(p.SourcesCount)
		row.ItemsAdded = int64Ptr(p.ItemsAdded)
	case enums.EventLineItemPriceValidated:
		var p payloads.PriceValidatedEvent
		if err := decode(envelope.Payload, &p); err != nil {
			return DecisionRow{}, false, err
		}
		row.LineItemID = p.LineItemID.String()
		row.PriceOutcome = strPtr(string(p.Outcome))
		if p.Note != "" {
			row.Note = strPtr(p.Note)
		}
	case enums.EventExplanationDecided:
		var p payloads.ExplanationDecidedEvent
		if err := decode(envelope.Payload, &p); err != nil {
			return DecisionRow{}, false, err
		}
		row.LineItemID = p.LineItemID.String()
		row.Decision = strPtr(string(p.Decision))
		if p.Note != "" {
			row.Note = strPtr(p.Note)
		}
	default:
		return DecisionRow{}, false, nil
	}

	return row, true, nil
}

func decode(raw json.RawMessage, dest any) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	return nil
}

func strPtr(value string) *string { return &value }

func int64Ptr(value int) *int64 {
	v := int64(value)
	return &v
}
