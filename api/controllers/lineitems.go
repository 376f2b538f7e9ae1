package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/api/responses"
	"github.com/veriline/veriline-backend/api/validators"
	"github.com/veriline/veriline-backend/internal/orchestrator"
	"github.com/veriline/veriline-backend/internal/pipeline"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
	"github.com/veriline/veriline-backend/pkg/logger"
)

type lineItemPayload struct {
	LineItemID      string           `json:"lineItemId" validate:"omitempty,uuid"`
	ItemName        string           `json:"itemName"`
	ItemDescription string           `json:"itemDescription,omitempty"`
	Quantity        decimal.Decimal  `json:"quantity,omitempty"`
	Unit            string           `json:"unit,omitempty"`
	UnitPrice       *decimal.Decimal `json:"unitPrice,omitempty"`
	ServiceLine     string           `json:"serviceLine,omitempty"`
	ServiceType     string           `json:"serviceType,omitempty"`
	ScopeOfWork     string           `json:"scopeOfWork,omitempty"`
}

func (p lineItemPayload) toSubmitInput() (pipeline.SubmitInput, error) {
	if p.Quantity.IsNegative() {
		return pipeline.SubmitInput{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	input := pipeline.SubmitInput{
		Name:        p.ItemName,
		Description: p.ItemDescription,
		Quantity:    p.Quantity,
		Unit:        p.Unit,
		UnitPrice:   p.UnitPrice,
		ServiceLine: p.ServiceLine,
		ServiceType: p.ServiceType,
		ScopeOfWork: p.ScopeOfWork,
	}
	if p.LineItemID != "" {
		id, err := uuid.Parse(p.LineItemID)
		if err != nil {
			return pipeline.SubmitInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line item id")
		}
		input.LineItemID = id
	}
	return input, nil
}

type validateBatchRequest struct {
	Items []lineItemPayload `json:"items" validate:"required,min=1,max=200"`
}

type validateItemResponse struct {
	LineItemID string   `json:"lineItemId"`
	Status     string   `json:"status"`
	Verdict    string   `json:"verdict"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
	Source     string   `json:"source"`
}

type batchItemResponse struct {
	validateItemResponse
	Error *string `json:"error,omitempty"`
}

type batchSummaryResponse struct {
	Approved    int `json:"approved"`
	Rejected    int `json:"rejected"`
	NeedsReview int `json:"needsReview"`
}

func toItemResponse(result pipeline.SubmitResult) validateItemResponse {
	reasons := result.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return validateItemResponse{
		LineItemID: result.ItemID.String(),
		Status:     result.Status.String(),
		Verdict:    result.Verdict.String(),
		Score:      result.Score,
		Reasons:    reasons,
		Source:     string(result.Source),
	}
}

// ValidateLineItem submits one invoice line item through pre-validation and
// routes the verdict into the state machine.
func ValidateLineItem(svc pipeline.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline unavailable"))
			return
		}

		var payload lineItemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toSubmitInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toItemResponse(result))
	}
}

// ValidateLineItemBatch submits a batch. Entries fail independently; the
// advisory business-rule violations annotate the response as a whole.
func ValidateLineItemBatch(svc pipeline.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline unavailable"))
			return
		}

		var payload validateBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]pipeline.SubmitInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			input, err := item.toSubmitInput()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			inputs = append(inputs, input)
		}

		batch, err := svc.SubmitBatch(r.Context(), inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results := make([]batchItemResponse, 0, len(batch.Results))
		success := true
		for _, entry := range batch.Results {
			row := batchItemResponse{validateItemResponse: toItemResponse(entry.SubmitResult)}
			if entry.Err != nil {
				success = false
				msg := publicErrorMessage(entry.Err)
				row.Error = &msg
			}
			results = append(results, row)
		}

		responses.WriteSuccess(w, map[string]any{
			"success": success,
			"results": results,
			"summary": batchSummaryResponse{
				Approved:    batch.Summary.Approved,
				Rejected:    batch.Summary.Rejected,
				NeedsReview: batch.Summary.NeedsReview,
			},
			"ruleViolations": batch.Violations,
		})
	}
}

type statusResponse struct {
	LineItemID   string         `json:"lineItemId"`
	Status       string         `json:"status"`
	StageDetails map[string]any `json:"stageDetails"`
	LastUpdated  time.Time      `json:"lastUpdated"`
}

// LineItemStatus is the pure status read: current state plus whatever stage
// detail exists. Absent stages are simply omitted.
func LineItemStatus(svc orchestrator.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orchestrator unavailable"))
			return
		}
		id, err := parseLineItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Status(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stages := map[string]any{}
		if view.Validation != nil {
			stages["validation"] = map[string]any{
				"verdict":   view.Validation.Verdict.String(),
				"score":     view.Validation.Score,
				"reasons":   view.Validation.Reasons,
				"source":    string(view.Validation.Source),
				"createdAt": view.Validation.At,
			}
		}
		if view.Matching != nil {
			matching := map[string]any{"ingestPasses": view.Matching.IngestPasses}
			if view.Matching.CanonicalItemID != nil {
				matching["canonicalItemId"] = view.Matching.CanonicalItemID.String()
			}
			if view.Matching.Kind != nil {
				matching["matchKind"] = view.Matching.Kind.String()
			}
			if view.Matching.Confidence != nil {
				matching["confidence"] = *view.Matching.Confidence
			}
			stages["matching"] = matching
		}
		if view.Pricing != nil {
			stages["pricing"] = map[string]any{
				"outcome": view.Pricing.Outcome.String(),
				"note":    view.Pricing.Note,
			}
		}
		if view.Explanation != nil {
			stages["explanation"] = map[string]any{"note": view.Explanation.Note}
		}

		responses.WriteSuccess(w, statusResponse{
			LineItemID:   view.ID.String(),
			Status:       view.Status.String(),
			StageDetails: stages,
			LastUpdated:  view.LastUpdated,
		})
	}
}

type overrideStatusRequest struct {
	Status           string  `json:"status" validate:"required"`
	OrchestratorLock *string `json:"orchestratorLock,omitempty"`
}

// OverrideLineItemStatus is the admin path that force-sets an item's status
// outside the transition table. Unknown status values are rejected.
func OverrideLineItemStatus(svc orchestrator.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orchestrator unavailable"))
			return
		}
		id, err := parseLineItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload overrideStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseLineItemStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		item, err := svc.OverrideStatus(r.Context(), id, status, payload.OrchestratorLock)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"lineItemId": item.ID.String(),
			"status":     item.Status.String(),
		})
	}
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve deny"`
	Note     string `json:"note,omitempty" validate:"omitempty,max=2000"`
}

// LineItemDecision records the human or agent resolution for an item in
// needs_explanation.
func LineItemDecision(svc orchestrator.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orchestrator unavailable"))
			return
		}
		id, err := parseLineItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload decisionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := enums.ParseExplanationDecision(payload.Decision)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision"))
			return
		}

		item, err := svc.ResolveExplanation(r.Context(), id, decision, payload.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"lineItemId": item.ID.String(),
			"status":     item.Status.String(),
		})
	}
}

type domainEventRequest struct {
	Type    string          `json:"type" validate:"required"`
	Version int             `json:"version,omitempty"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// EventDriver applies a decoded domain event to the pipeline.
type EventDriver interface {
	Drive(ctx context.Context, event orchestrator.Event) (orchestrator.Outcome, error)
}

// IngestDomainEvent is the domain-event ingress. The contract is a boolean:
// unknown types, malformed payloads, stale replays, and lock contention all
// answer {accepted:false} without raising; only infrastructure faults error.
func IngestDomainEvent(driver EventDriver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if driver == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline unavailable"))
			return
		}

		var payload domainEventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		version := payload.Version
		if version == 0 {
			version = 1
		}

		event, err := orchestrator.DecodeEvent(payload.Type, version, payload.Payload)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeUnknownEvent) {
				writeAccepted(r, logg, w, false, err)
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := driver.Drive(r.Context(), event)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
				writeAccepted(r, logg, w, false, err)
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeAccepted(r, logg, w, outcome.Accepted(), nil)
	}
}

func writeAccepted(r *http.Request, logg *logger.Logger, w http.ResponseWriter, accepted bool, cause error) {
	if !accepted && cause != nil && logg != nil {
		ctx := logg.WithField(r.Context(), "reason", cause.Error())
		logg.Warn(ctx, "domain event not accepted")
	}
	responses.WriteSuccess(w, map[string]bool{"accepted": accepted})
}

func parseLineItemID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "lineItemId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line item id")
	}
	return id, nil
}

func publicErrorMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return "submission failed"
}
