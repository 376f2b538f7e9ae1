package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/veriline/veriline-backend/internal/orchestrator"
	"github.com/veriline/veriline-backend/pkg/logger"
	"github.com/veriline/veriline-backend/pkg/outbox"
)

const pipelineConsumerName = "pipeline"

type eventDriver interface {
	Drive(ctx context.Context, event orchestrator.Event) (orchestrator.Outcome, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes journaled line item events and drives each one through
// its pipeline stage. Redelivery is the retry mechanism: a failed stage
// nacks, a replayed transition acks without re-running the stage.
type Service struct {
	subscription *gcppubsub.Subscriber
	driver       eventDriver
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, driver eventDriver, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("line item subscription is required")
	}
	if driver == nil {
		return nil, errors.New("event driver is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: subscription,
		driver:       driver,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := s.logg.WithFields(ctx, fields)

	envelope, eventType, err := decodeMessage(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid line item event message")
		return processResult{}
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = eventType
	logCtx = s.logg.WithFields(ctx, fields)

	event, err := orchestrator.DecodeEvent(eventType, envelope.Version, envelope.Data)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "undecodable line item event")
		return processResult{}
	}
	fields["line_item_id"] = event.LineItemID().String()
	logCtx = s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	already, err := s.manager.CheckAndMarkProcessed(logCtx, pipelineConsumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	outcome, err := s.driver.Drive(logCtx, event)
	if err != nil {
		s.logg.Error(logCtx, "drive failed", err)
		_ = s.manager.Delete(logCtx, pipelineConsumerName, eventID)
		// Redelivery retries the stage; the transition itself replays cleanly.
		return processResult{nack: true}
	}
	if !outcome.Accepted() {
		s.logg.Warn(logCtx, "event invalid for current state, dropping")
		return processResult{}
	}

	fields["from"] = outcome.From.String()
	fields["to"] = outcome.To.String()
	fields["replay"] = outcome.Replay
	s.logg.Info(s.logg.WithFields(ctx, fields), "line item event handled")
	return processResult{}
}

func decodeMessage(msg *gcppubsub.Message) (*outbox.PayloadEnvelope, string, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return nil, "", fmt.Errorf("decode payload envelope: %w", err)
	}
	eventType := strings.TrimSpace(msg.Attributes["event_type"])
	if eventType == "" {
		return nil, "", errors.New("event_type attribute missing")
	}
	if envelope.EventID == "" {
		envelope.EventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if envelope.EventID == "" {
		return nil, "", errors.New("event_id missing")
	}
	if envelope.OccurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				envelope.OccurredAt = parsed
			}
		}
	}
	return &envelope, eventType, nil
}
