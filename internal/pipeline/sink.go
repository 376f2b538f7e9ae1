package pipeline

import (
	"context"
	"fmt"

	"github.com/veriline/veriline-backend/internal/orchestrator"
)

// EventSink receives the follow-up event a drive produces. Delivery must be
// durable before it returns; the drive's own transition has already
// committed by the time the sink is called.
type EventSink interface {
	Deliver(ctx context.Context, event orchestrator.Event) error
}

// ProcessingSink hands follow-up events straight back to the orchestrator,
// which applies them and journals them on the outbox inside one transaction.
// The journaled copy is what the worker later consumes to run the next
// stage, so each delivery advances the pipeline exactly one step.
type ProcessingSink struct {
	Orchestrator orchestrator.Service
}

func (s ProcessingSink) Deliver(ctx context.Context, event orchestrator.Event) error {
	if s.Orchestrator == nil {
		return fmt.Errorf("processing sink has no orchestrator")
	}
	_, err := s.Orchestrator.Process(ctx, event)
	return err
}
