package orchestrator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
)

// step is the planned effect of one event against the item's current row.
// Exactly one of three shapes comes back: applied (a real transition),
// replay (the event's outcome is already on the row, no-op success), or
// neither (the event is not valid for the current state).
type step struct {
	applied bool
	replay  bool
	to      enums.LineItemStatus
	mutate  func(*models.LineItem)
	record  *models.ValidationRecord
}

// planTransition maps (current row, event) to the transition to perform.
// It never mutates its inputs; callers apply step.mutate to the row they
// intend to persist. maxIngestPasses bounds how many enrichment rounds an
// item gets before a continued miss routes it to needs_explanation.
func planTransition(item *models.LineItem, latest *models.ValidationRecord, event Event, maxIngestPasses int) (step, error) {
	switch e := event.(type) {
	case Validated:
		return planValidated(item, latest, e)
	case Matched:
		return planMatched(item, e)
	case MatchMiss:
		return planMatchMiss(item, maxIngestPasses), nil
	case WebIngested:
		return planWebIngested(item), nil
	case PriceValidated:
		return planPriceValidated(item, e), nil
	case ExplanationDecided:
		return planExplanationDecided(item, e)
	default:
		return step{}, pkgerrors.New(pkgerrors.CodeUnknownEvent, fmt.Sprintf("unhandled event %T", event))
	}
}

func planValidated(item *models.LineItem, latest *models.ValidationRecord, e Validated) (step, error) {
	switch e.Verdict {
	case enums.VerdictApproved, enums.VerdictRejected, enums.VerdictNeedsReview:
	default:
		return step{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid verdict %q", e.Verdict))
	}

	if item.Status != enums.LineItemStatusNew {
		if e.Verdict == enums.VerdictApproved && item.Status == enums.LineItemStatusAwaitingMatch {
			return step{replay: true}, nil
		}
		if e.Verdict == enums.VerdictRejected && item.Status == enums.LineItemStatusValidationRejected {
			return step{replay: true}, nil
		}
		return step{}, nil
	}

	// A needs_review verdict keeps the item in new; an identical verdict
	// already on file means this delivery is a duplicate.
	if e.Verdict == enums.VerdictNeedsReview && latest != nil &&
		latest.Verdict == e.Verdict && latest.Source == e.Source && latest.Score == e.Score {
		return step{replay: true}, nil
	}

	to := enums.LineItemStatusNew
	switch e.Verdict {
	case enums.VerdictApproved:
		to = enums.LineItemStatusAwaitingMatch
	case enums.VerdictRejected:
		to = enums.LineItemStatusValidationRejected
	}
	return step{
		applied: true,
		to:      to,
		record: &models.ValidationRecord{
			LineItemID: item.ID,
			Verdict:    e.Verdict,
			Score:      e.Score,
			Reasons:    pq.StringArray(e.Reasons),
			Source:     e.Source,
		},
	}, nil
}

func planMatched(item *models.LineItem, e Matched) (step, error) {
	if e.CanonicalItemID == uuid.Nil {
		return step{}, pkgerrors.New(pkgerrors.CodeValidation, "canonical item id required")
	}
	if item.Status == enums.LineItemStatusMatched &&
		item.CanonicalItemID != nil && *item.CanonicalItemID == e.CanonicalItemID {
		return step{replay: true}, nil
	}
	if item.Status != enums.LineItemStatusAwaitingMatch {
		return step{}, nil
	}
	canonicalID := e.CanonicalItemID
	kind := e.Kind
	confidence := e.Confidence
	return step{
		applied: true,
		to:      enums.LineItemStatusMatched,
		mutate: func(li *models.LineItem) {
			li.CanonicalItemID = &canonicalID
			li.MatchKind = &kind
			li.MatchConfidence = &confidence
		},
	}, nil
}

func planMatchMiss(item *models.LineItem, maxIngestPasses int) step {
	switch item.Status {
	case enums.LineItemStatusAwaitingMatch:
		if item.IngestPasses >= maxIngestPasses {
			return step{applied: true, to: enums.LineItemStatusNeedsExplanation}
		}
		return step{applied: true, to: enums.LineItemStatusAwaitingIngest}
	case enums.LineItemStatusAwaitingIngest:
		return step{replay: true}
	case enums.LineItemStatusNeedsExplanation:
		// A duplicate of the miss that exhausted the ingest budget.
		if item.IngestPasses >= maxIngestPasses {
			return step{replay: true}
		}
		return step{}
	default:
		return step{}
	}
}

func planWebIngested(item *models.LineItem) step {
	switch item.Status {
	case enums.LineItemStatusAwaitingIngest:
		return step{
			applied: true,
			to:      enums.LineItemStatusAwaitingMatch,
			mutate:  func(li *models.LineItem) { li.IngestPasses++ },
		}
	case enums.LineItemStatusAwaitingMatch:
		if item.IngestPasses > 0 {
			return step{replay: true}
		}
		return step{}
	default:
		return step{}
	}
}

func planPriceValidated(item *models.LineItem, e PriceValidated) step {
	switch item.Status {
	case enums.LineItemStatusMatched:
		outcome := e.Outcome
		note := e.Note
		to := enums.LineItemStatusPriceValidated
		if !e.Validated {
			to = enums.LineItemStatusNeedsExplanation
		}
		return step{
			applied: true,
			to:      to,
			mutate: func(li *models.LineItem) {
				li.PriceOutcome = &outcome
				if note != "" {
					li.PriceNote = &note
				}
			},
		}
	case enums.LineItemStatusPriceValidated:
		if e.Validated {
			return step{replay: true}
		}
		return step{}
	case enums.LineItemStatusNeedsExplanation:
		// The row only carries a price outcome when pricing routed it here.
		if !e.Validated && item.PriceOutcome != nil {
			return step{replay: true}
		}
		return step{}
	default:
		return step{}
	}
}

func planExplanationDecided(item *models.LineItem, e ExplanationDecided) (step, error) {
	var to enums.LineItemStatus
	switch e.Decision {
	case enums.ExplanationDecisionApprove:
		to = enums.LineItemStatusReadyForSubmission
	case enums.ExplanationDecisionDeny:
		to = enums.LineItemStatusDenied
	default:
		return step{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid explanation decision %q", e.Decision))
	}

	switch item.Status {
	case enums.LineItemStatusNeedsExplanation:
		note := strings.TrimSpace(e.Note)
		return step{
			applied: true,
			to:      to,
			mutate: func(li *models.LineItem) {
				if note != "" {
					li.ExplanationNote = &note
				}
			},
		}, nil
	case to:
		return step{replay: true}, nil
	default:
		return step{}, nil
	}
}
