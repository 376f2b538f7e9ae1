package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/veriline/veriline-backend/pkg/enums"
	"github.com/veriline/veriline-backend/pkg/logger"
	"github.com/veriline/veriline-backend/pkg/outbox"
)

const auditConsumerName = "audit"

// Handler defines how to record ledger envelopes.
type Handler interface {
	Handle(ctx context.Context, envelope Envelope) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Worker consumes pipeline events from Pub/Sub and appends them to the
// decision ledger, deduplicating by event id.
type Worker struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewWorker(subscription *gcppubsub.Subscriber, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Worker, error) {
	if subscription == nil {
		return nil, errors.New("audit subscription is required")
	}
	if handler == nil {
		return nil, errors.New("audit handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Worker{
		subscription: subscription,
		handler:      handler,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes ledger messages until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return w.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if w.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := w.logg.WithFields(ctx, fields)

	envelope, err := buildEnvelope(msg)
	if err != nil {
		fields["error"] = err.Error()
		w.logg.Warn(w.logg.WithFields(ctx, fields), "invalid ledger envelope")
		return processResult{}
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = envelope.EventType
	fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	logCtx = w.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		w.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	already, err := w.manager.CheckAndMarkProcessed(logCtx, auditConsumerName, eventID)
	if err != nil {
		w.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		w.logg.Info(logCtx, "event already recorded")
		return processResult{}
	}

	if err := w.handler.Handle(logCtx, *envelope); err != nil {
		w.logg.Error(logCtx, "ledger write failed", err)
		_ = w.manager.Delete(logCtx, auditConsumerName, eventID)
		return processResult{nack: true}
	}

	w.logg.Info(logCtx, "ledger event recorded")
	return processResult{}
}

func buildEnvelope(msg *gcppubsub.Message) (*Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	return &Envelope{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: occurredAt.UTC(),
		Payload:    stored.Data,
	}, nil
}
