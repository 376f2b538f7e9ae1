package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veriline/veriline-backend/internal/lineitems"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
	"github.com/veriline/veriline-backend/pkg/metrics"
	"github.com/veriline/veriline-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Outcome reports what Process did with an event.
type Outcome struct {
	Applied bool // a transition was performed
	Replay  bool // duplicate of an already applied event, no-op success
	From    enums.LineItemStatus
	To      enums.LineItemStatus
	Item    *models.LineItem
}

// Accepted reports whether the event was consumed, either by applying it or
// by recognizing it as a duplicate.
func (o Outcome) Accepted() bool { return o.Applied || o.Replay }

// StatusView is the read model for one line item's pipeline position.
type StatusView struct {
	ID          uuid.UUID
	Status      enums.LineItemStatus
	Validation  *ValidationDetail
	Matching    *MatchingDetail
	Pricing     *PricingDetail
	Explanation *ExplanationDetail
	LastUpdated time.Time
}

// ValidationDetail mirrors the newest validation record.
type ValidationDetail struct {
	Verdict enums.Verdict
	Score   float64
	Reasons []string
	Source  enums.ValidationSource
	At      time.Time
}

// MatchingDetail mirrors the resolver fields on the row.
type MatchingDetail struct {
	CanonicalItemID *uuid.UUID
	Kind            *enums.MatchKind
	Confidence      *float64
	IngestPasses    int
}

// PricingDetail mirrors the price check fields on the row.
type PricingDetail struct {
	Outcome enums.PriceOutcome
	Note    string
}

// ExplanationDetail mirrors the recorded human decision note.
type ExplanationDetail struct {
	Note string
}

// Service drives line items through the pipeline state machine. Each event
// is an idempotent trigger; at most one transition per item is in flight at
// a time.
type Service interface {
	Process(ctx context.Context, event Event) (Outcome, error)
	Status(ctx context.Context, id uuid.UUID) (*StatusView, error)
	OverrideStatus(ctx context.Context, id uuid.UUID, status enums.LineItemStatus, lock *string) (*models.LineItem, error)
	ResolveExplanation(ctx context.Context, id uuid.UUID, decision enums.ExplanationDecision, note string) (*models.LineItem, error)
}

type service struct {
	repo            *lineitems.Repository
	tx              txRunner
	outbox          outboxPublisher
	pipelineMetrics *metrics.PipelineMetrics
	maxIngestPasses int
}

// NewService builds the orchestrator. pipelineMetrics may be nil.
func NewService(repo *lineitems.Repository, tx txRunner, publisher outboxPublisher, pipelineMetrics *metrics.PipelineMetrics, maxIngestPasses int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("line item repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if maxIngestPasses < 0 {
		return nil, fmt.Errorf("ingest pass budget must not be negative")
	}
	return &service{
		repo:            repo,
		tx:              tx,
		outbox:          publisher,
		pipelineMetrics: pipelineMetrics,
		maxIngestPasses: maxIngestPasses,
	}, nil
}

// Process applies one domain event to its line item. Duplicates and events
// invalid for the current state return without touching the row; only an
// applied transition mutates state, appends the validation record when one
// is due, and journals the event, all in one transaction under the item's
// lock.
func (s *service) Process(ctx context.Context, event Event) (Outcome, error) {
	if event == nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	id := event.LineItemID()
	if id == uuid.Nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "line item id required")
	}

	item, err := s.loadItem(ctx, s.repo, id)
	if err != nil {
		return Outcome{}, err
	}

	// Duplicates and invalid events resolve against the unlocked row so
	// they never contend for the lock.
	plan, err := s.planFor(ctx, s.repo, item, event)
	if err != nil {
		return Outcome{}, err
	}
	if !plan.applied {
		return unchangedOutcome(item, plan), nil
	}

	token := uuid.NewString()
	claimed, err := s.repo.ClaimLock(ctx, id, token)
	if err != nil {
		return Outcome{}, err
	}
	if !claimed {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeConflict, "line item transition in flight")
	}

	var out Outcome
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		fresh, err := s.loadItem(ctx, txRepo, id)
		if err != nil {
			return err
		}
		// Re-plan against the row as it stands now that the lock is held.
		freshPlan, err := s.planFor(ctx, txRepo, fresh, event)
		if err != nil {
			return err
		}
		if !freshPlan.applied {
			out = unchangedOutcome(fresh, freshPlan)
			return nil
		}

		from := fresh.Status
		fresh.Status = freshPlan.to
		if freshPlan.mutate != nil {
			freshPlan.mutate(fresh)
		}
		if err := txRepo.Update(ctx, fresh); err != nil {
			return err
		}
		if freshPlan.record != nil {
			if err := txRepo.InsertValidationRecord(ctx, freshPlan.record); err != nil {
				return err
			}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     event.Type(),
			AggregateType: enums.AggregateLineItem,
			AggregateID:   id,
			Data:          event.wirePayload(),
			Version:       eventVersion,
		}); err != nil {
			return err
		}
		out = Outcome{Applied: true, From: from, To: fresh.Status, Item: fresh}
		return nil
	})
	releaseErr := s.repo.ReleaseLock(ctx, id, token)
	if txErr != nil {
		return Outcome{}, txErr
	}
	if releaseErr != nil {
		return Outcome{}, releaseErr
	}

	if out.Applied {
		if out.From != out.To {
			s.pipelineMetrics.IncTransition(out.From.String(), out.To.String())
		}
		switch e := event.(type) {
		case Validated:
			s.pipelineMetrics.IncVerdict(e.Verdict.String())
		case PriceValidated:
			s.pipelineMetrics.IncPriceOutcome(e.Outcome.String())
		}
	}
	return out, nil
}

// Status returns the item's current pipeline position with per-stage detail.
// Missing stage data is absent, never an error; only an unknown item fails.
func (s *service) Status(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item id required")
	}
	item, err := s.loadItem(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.LatestValidationRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &StatusView{ID: item.ID, Status: item.Status, LastUpdated: item.UpdatedAt}
	if record != nil {
		view.Validation = &ValidationDetail{
			Verdict: record.Verdict,
			Score:   record.Score,
			Reasons: append([]string(nil), record.Reasons...),
			Source:  record.Source,
			At:      record.CreatedAt,
		}
	}
	if item.CanonicalItemID != nil || item.IngestPasses > 0 {
		view.Matching = &MatchingDetail{
			CanonicalItemID: item.CanonicalItemID,
			Kind:            item.MatchKind,
			Confidence:      item.MatchConfidence,
			IngestPasses:    item.IngestPasses,
		}
	}
	if item.PriceOutcome != nil {
		detail := &PricingDetail{Outcome: *item.PriceOutcome}
		if item.PriceNote != nil {
			detail.Note = *item.PriceNote
		}
		view.Pricing = detail
	}
	if item.ExplanationNote != nil {
		view.Explanation = &ExplanationDetail{Note: *item.ExplanationNote}
	}
	return view, nil
}

// OverrideStatus force-sets the item's status outside the transition table.
// The orchestrator lock is overwritten with the provided value; passing nil
// frees an item whose lock was orphaned by a crashed worker.
func (s *service) OverrideStatus(ctx context.Context, id uuid.UUID, status enums.LineItemStatus, lock *string) (*models.LineItem, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid line item status %q", status))
	}
	item, err := s.loadItem(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	item.Status = status
	item.OrchestratorLock = lock
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ResolveExplanation records a human decision for an item awaiting one and
// routes it through the state machine. Items not awaiting a decision reject
// with a state conflict.
func (s *service) ResolveExplanation(ctx context.Context, id uuid.UUID, decision enums.ExplanationDecision, note string) (*models.LineItem, error) {
	if !decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid explanation decision %q", decision))
	}
	outcome, err := s.Process(ctx, ExplanationDecided{ItemID: id, Decision: decision, Note: note})
	if err != nil {
		return nil, err
	}
	if !outcome.Accepted() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("decision not allowed while item is %s", outcome.From))
	}
	return outcome.Item, nil
}

func (s *service) loadItem(ctx context.Context, repo *lineitems.Repository, id uuid.UUID) (*models.LineItem, error) {
	item, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "line item not found")
		}
		return nil, err
	}
	return item, nil
}

// planFor fetches the newest validation record only when the event needs it
// for duplicate detection.
func (s *service) planFor(ctx context.Context, repo *lineitems.Repository, item *models.LineItem, event Event) (step, error) {
	var latest *models.ValidationRecord
	if _, ok := event.(Validated); ok {
		var err error
		latest, err = repo.LatestValidationRecord(ctx, item.ID)
		if err != nil {
			return step{}, err
		}
	}
	return planTransition(item, latest, event, s.maxIngestPasses)
}

func unchangedOutcome(item *models.LineItem, plan step) Outcome {
	return Outcome{Replay: plan.replay, From: item.Status, To: item.Status, Item: item}
}
