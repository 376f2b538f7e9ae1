package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/internal/enrichment"
	"github.com/veriline/veriline-backend/internal/lineitems"
	"github.com/veriline/veriline-backend/internal/orchestrator"
	"github.com/veriline/veriline-backend/internal/prevalidation"
	"github.com/veriline/veriline-backend/internal/pricing"
	"github.com/veriline/veriline-backend/internal/resolver"
	"github.com/veriline/veriline-backend/internal/rules"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
	"github.com/veriline/veriline-backend/pkg/metrics"
)

type transitionProcessor interface {
	Process(ctx context.Context, event orchestrator.Event) (orchestrator.Outcome, error)
}

type validationEngine interface {
	Evaluate(ctx context.Context, input prevalidation.Input) prevalidation.Outcome
}

type itemResolver interface {
	Resolve(ctx context.Context, query resolver.Query) (resolver.Match, error)
}

type vendorIngester interface {
	Ingest(ctx context.Context, input enrichment.IngestInput) (enrichment.IngestOutcome, error)
}

type priceChecker interface {
	Check(ctx context.Context, item *models.LineItem) (pricing.Result, error)
}

type batchRules interface {
	Evaluate(ctx context.Context, items []rules.BatchItem) ([]rules.Violation, error)
}

// SubmitInput is one invoice line item offered to the pipeline. A zero
// LineItemID lets the pipeline mint one; a client-supplied id makes the
// submission idempotent.
type SubmitInput struct {
	LineItemID  uuid.UUID
	Name        string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   *decimal.Decimal
	ServiceLine string
	ServiceType string
	ScopeOfWork string
}

// SubmitResult reports the validation verdict and where the item landed.
type SubmitResult struct {
	ItemID  uuid.UUID
	Status  enums.LineItemStatus
	Verdict enums.Verdict
	Score   float64
	Reasons []string
	Source  enums.ValidationSource
}

// BatchItemResult is one batch entry's result. Err is set when that entry
// failed; the rest of the batch is unaffected.
type BatchItemResult struct {
	SubmitResult
	Err error
}

// BatchSummary tallies the verdicts of the entries that went through.
type BatchSummary struct {
	Approved    int
	Rejected    int
	NeedsReview int
}

// BatchResult is the full batch response: per-item results, the verdict
// summary, and the advisory business-rule violations for the batch as a
// whole.
type BatchResult struct {
	Results    []BatchItemResult
	Summary    BatchSummary
	Violations []rules.Violation
}

// Service is the pipeline entry point: submissions come in through Submit,
// and journaled domain events come back in through Drive.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (SubmitResult, error)
	SubmitBatch(ctx context.Context, inputs []SubmitInput) (BatchResult, error)
	Drive(ctx context.Context, event orchestrator.Event) (orchestrator.Outcome, error)
}

type service struct {
	repo            *lineitems.Repository
	orch            transitionProcessor
	engine          validationEngine
	resolver        itemResolver
	ingester        vendorIngester
	pricer          priceChecker
	rules           batchRules
	sink            EventSink
	pipelineMetrics *metrics.PipelineMetrics
}

// NewService wires the pipeline. Metrics may be nil.
func NewService(
	repo *lineitems.Repository,
	orch transitionProcessor,
	engine validationEngine,
	res itemResolver,
	ingester vendorIngester,
	pricer priceChecker,
	rulesEngine batchRules,
	sink EventSink,
	pipelineMetrics *metrics.PipelineMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("line item repository required")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if engine == nil {
		return nil, fmt.Errorf("validation engine required")
	}
	if res == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("vendor ingester required")
	}
	if pricer == nil {
		return nil, fmt.Errorf("price checker required")
	}
	if rulesEngine == nil {
		return nil, fmt.Errorf("rules engine required")
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink required")
	}
	return &service{
		repo:            repo,
		orch:            orch,
		engine:          engine,
		resolver:        res,
		ingester:        ingester,
		pricer:          pricer,
		rules:           rulesEngine,
		sink:            sink,
		pipelineMetrics: pipelineMetrics,
	}, nil
}

// Submit persists the line item and routes its validation verdict. A
// resubmission of an already-validated id returns the recorded verdict
// without re-running the engine; a resubmission of an id that was created
// but never validated (an interrupted submission) picks up where it left
// off. Matching and everything after it happen asynchronously.
func (s *service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	if input.Quantity.IsNegative() {
		return SubmitResult{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	id := input.LineItemID
	if id == uuid.Nil {
		id = uuid.New()
	}

	item, created, err := s.repo.CreateIfAbsent(ctx, buildLineItem(id, input))
	if err != nil {
		return SubmitResult{}, err
	}
	if !created {
		record, err := s.repo.LatestValidationRecord(ctx, item.ID)
		if err != nil {
			return SubmitResult{}, err
		}
		if record != nil {
			return SubmitResult{
				ItemID:  item.ID,
				Status:  item.Status,
				Verdict: record.Verdict,
				Score:   record.Score,
				Reasons: append([]string(nil), record.Reasons...),
				Source:  record.Source,
			}, nil
		}
	}

	start := time.Now()
	verdict := s.engine.Evaluate(ctx, prevalidation.Input{
		Name:        input.Name,
		Description: input.Description,
		ServiceLine: input.ServiceLine,
		ServiceType: input.ServiceType,
		ScopeOfWork: input.ScopeOfWork,
	})
	s.pipelineMetrics.ObserveStage("prevalidate", time.Since(start))

	outcome, err := s.orch.Process(ctx, orchestrator.Validated{
		ItemID:  item.ID,
		Verdict: verdict.Verdict,
		Score:   verdict.Score,
		Reasons: verdict.Reasons,
		Source:  verdict.Source,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	return SubmitResult{
		ItemID:  item.ID,
		Status:  outcome.Item.Status,
		Verdict: verdict.Verdict,
		Score:   verdict.Score,
		Reasons: verdict.Reasons,
		Source:  verdict.Source,
	}, nil
}

// SubmitBatch validates the batch-level business rules, then submits every
// entry. One entry's failure never aborts the others.
func (s *service) SubmitBatch(ctx context.Context, inputs []SubmitInput) (BatchResult, error) {
	if len(inputs) == 0 {
		return BatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, "batch must contain at least one item")
	}

	batchItems := make([]rules.BatchItem, 0, len(inputs))
	for _, input := range inputs {
		batchItems = append(batchItems, rules.BatchItem{
			Name:        input.Name,
			Quantity:    input.Quantity,
			ServiceLine: input.ServiceLine,
		})
	}
	violations, err := s.rules.Evaluate(ctx, batchItems)
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{
		Results:    make([]BatchItemResult, 0, len(inputs)),
		Violations: violations,
	}
	for _, input := range inputs {
		submitted, err := s.Submit(ctx, input)
		if err != nil {
			result.Results = append(result.Results, BatchItemResult{Err: err})
			continue
		}
		result.Results = append(result.Results, BatchItemResult{SubmitResult: submitted})
		switch submitted.Verdict {
		case enums.VerdictApproved:
			result.Summary.Approved++
		case enums.VerdictRejected:
			result.Summary.Rejected++
		case enums.VerdictNeedsReview:
			result.Summary.NeedsReview++
		}
	}
	return result, nil
}

// Drive applies one journaled event and runs the stage its resulting state
// calls for, delivering the stage's follow-up event through the sink. Each
// delivery advances the item at most one stage; redelivering a message
// replays the transition and retries only the stage that did not complete.
func (s *service) Drive(ctx context.Context, event orchestrator.Event) (orchestrator.Outcome, error) {
	outcome, err := s.orch.Process(ctx, event)
	if err != nil || !outcome.Accepted() {
		return outcome, err
	}

	next, err := s.followUp(ctx, event, outcome)
	if err != nil {
		return outcome, err
	}
	if next == nil {
		return outcome, nil
	}
	if err := s.sink.Deliver(ctx, next); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (s *service) followUp(ctx context.Context, event orchestrator.Event, outcome orchestrator.Outcome) (orchestrator.Event, error) {
	switch event.(type) {
	case orchestrator.Validated, orchestrator.WebIngested:
		if outcome.To != enums.LineItemStatusAwaitingMatch {
			return nil, nil
		}
		return s.resolveStage(ctx, outcome.Item)
	case orchestrator.MatchMiss:
		if outcome.To != enums.LineItemStatusAwaitingIngest {
			return nil, nil
		}
		return s.ingestStage(ctx, outcome.Item)
	case orchestrator.Matched:
		if outcome.To != enums.LineItemStatusMatched {
			return nil, nil
		}
		return s.priceStage(ctx, outcome.Item)
	}
	return nil, nil
}

func (s *service) resolveStage(ctx context.Context, item *models.LineItem) (orchestrator.Event, error) {
	start := time.Now()
	match, err := s.resolver.Resolve(ctx, resolver.Query{
		Name:        item.RawName,
		ServiceLine: deref(item.ServiceLine),
	})
	s.pipelineMetrics.ObserveStage("resolve", time.Since(start))
	if err != nil {
		return nil, err
	}
	if match.Kind == enums.MatchKindNone {
		return orchestrator.MatchMiss{ItemID: item.ID, ItemName: item.RawName}, nil
	}
	return orchestrator.Matched{
		ItemID:          item.ID,
		CanonicalItemID: match.Item.ID,
		Confidence:      match.Confidence,
		Kind:            match.Kind,
	}, nil
}

func (s *service) ingestStage(ctx context.Context, item *models.LineItem) (orchestrator.Event, error) {
	start := time.Now()
	ingested, err := s.ingester.Ingest(ctx, enrichment.IngestInput{
		Query:       item.RawName,
		ServiceLine: deref(item.ServiceLine),
	})
	s.pipelineMetrics.ObserveStage("ingest", time.Since(start))
	if err != nil {
		return nil, err
	}
	return orchestrator.WebIngested{
		ItemID:       item.ID,
		SourcesCount: ingested.Sources,
		ItemsAdded:   ingested.ItemsAdded,
	}, nil
}

func (s *service) priceStage(ctx context.Context, item *models.LineItem) (orchestrator.Event, error) {
	start := time.Now()
	checked, err := s.pricer.Check(ctx, item)
	s.pipelineMetrics.ObserveStage("price", time.Since(start))
	if err != nil {
		return nil, err
	}
	return orchestrator.PriceValidated{
		ItemID:    item.ID,
		Validated: checked.Validated,
		Outcome:   checked.Outcome,
		Note:      checked.Note,
	}, nil
}

func buildLineItem(id uuid.UUID, input SubmitInput) *models.LineItem {
	// An omitted quantity decodes as zero; store the schema default instead.
	quantity := input.Quantity
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}
	return &models.LineItem{
		ID:             id,
		RawName:        strings.TrimSpace(input.Name),
		RawDescription: optional(input.Description),
		Quantity:       quantity,
		Unit:           optional(input.Unit),
		UnitPrice:      input.UnitPrice,
		ServiceLine:    optional(input.ServiceLine),
		ServiceType:    optional(input.ServiceType),
		ScopeOfWork:    optional(input.ScopeOfWork),
		Status:         enums.LineItemStatusNew,
	}
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
