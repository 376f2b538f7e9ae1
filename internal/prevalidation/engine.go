package prevalidation

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/veriline/veriline-backend/internal/oracle"
	"github.com/veriline/veriline-backend/pkg/enums"
)

const (
	minNameLength = 3

	blacklistScore   = 0.1
	baseKeywordScore = 0.75
	keywordScoreStep = 0.05
	maxKeywordScore  = 0.9
	fallbackScore    = 0.6

	// oracle confidence bands
	approveConfidence = 0.8
	reviewConfidence  = 0.5
)

// Input is one line item submission to validate.
type Input struct {
	Name        string
	Description string
	ServiceLine string
	ServiceType string
	ScopeOfWork string
}

// Outcome is the validation verdict. Reasons is never empty.
type Outcome struct {
	Verdict enums.Verdict
	Score   float64
	Reasons []string
	Source  enums.ValidationSource
}

type relevanceOracle interface {
	Judge(ctx context.Context, claim oracle.Claim) (*oracle.Judgment, error)
}

// Engine decides whether a submitted line item is a plausible
// facility-maintenance purchase.
type Engine interface {
	Evaluate(ctx context.Context, input Input) Outcome
}

type engine struct {
	oracle relevanceOracle
}

// NewEngine builds the validation engine. A nil oracle disables context
// refinement; the deterministic rule phase always runs.
func NewEngine(relevance relevanceOracle) Engine {
	return &engine{oracle: relevance}
}

// Evaluate runs the rule phase (structural, blacklist, vocabulary) and, when
// work context and an oracle are available, refines the verdict with a
// relevance judgment. Rule-phase rejections are final; oracle failures
// degrade to the rule verdict and never fail the item.
func (e *engine) Evaluate(ctx context.Context, input Input) Outcome {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Outcome{
			Verdict: enums.VerdictRejected,
			Score:   0,
			Reasons: []string{"Item name is required"},
			Source:  enums.ValidationSourceRules,
		}
	}
	if utf8.RuneCountInString(name) < minNameLength {
		return Outcome{
			Verdict: enums.VerdictRejected,
			Score:   0,
			Reasons: []string{"Item name too short"},
			Source:  enums.ValidationSourceRules,
		}
	}

	if term, hit := firstBlacklisted(name, input.Description); hit {
		return Outcome{
			Verdict: enums.VerdictRejected,
			Score:   blacklistScore,
			Reasons: []string{fmt.Sprintf("Contains blacklisted term: %s", term)},
			Source:  enums.ValidationSourceRules,
		}
	}

	ruleOutcome := vocabularyOutcome(name)
	if e.oracle == nil || !hasContext(input) {
		return ruleOutcome
	}

	judgment, err := e.oracle.Judge(ctx, oracle.Claim{
		ItemName:    name,
		Description: strings.TrimSpace(input.Description),
		ServiceLine: strings.TrimSpace(input.ServiceLine),
		ServiceType: strings.TrimSpace(input.ServiceType),
		ScopeOfWork: strings.TrimSpace(input.ScopeOfWork),
	})
	if err != nil {
		ruleOutcome.Reasons = append(ruleOutcome.Reasons, "LLM enhancement unavailable")
		return ruleOutcome
	}
	return refine(judgment)
}

func vocabularyOutcome(name string) Outcome {
	hits := keywordHits(name)
	if len(hits) == 0 {
		return Outcome{
			Verdict: enums.VerdictNeedsReview,
			Score:   fallbackScore,
			Reasons: []string{"Requires human review"},
			Source:  enums.ValidationSourceRules,
		}
	}

	score := baseKeywordScore + keywordScoreStep*float64(len(hits)-1)
	if score > maxKeywordScore {
		score = maxKeywordScore
	}
	return Outcome{
		Verdict: enums.VerdictApproved,
		Score:   score,
		Reasons: []string{fmt.Sprintf("Matches facility maintenance vocabulary: %s", strings.Join(hits, ", "))},
		Source:  enums.ValidationSourceRules,
	}
}

func refine(judgment *oracle.Judgment) Outcome {
	reason := strings.TrimSpace(judgment.Reason)

	if !judgment.IsRelevant {
		if reason == "" {
			reason = "Not relevant to the work context"
		}
		return Outcome{
			Verdict: enums.VerdictRejected,
			Score:   1 - judgment.Confidence,
			Reasons: []string{reason},
			Source:  enums.ValidationSourceOracle,
		}
	}

	switch {
	case judgment.Confidence >= approveConfidence:
		if reason == "" {
			reason = "Relevant to the work context"
		}
		return Outcome{
			Verdict: enums.VerdictApproved,
			Score:   judgment.Confidence,
			Reasons: []string{reason},
			Source:  enums.ValidationSourceOracle,
		}
	case judgment.Confidence >= reviewConfidence:
		return Outcome{
			Verdict: enums.VerdictNeedsReview,
			Score:   judgment.Confidence,
			Reasons: []string{"Medium confidence - requires human review"},
			Source:  enums.ValidationSourceOracle,
		}
	default:
		return Outcome{
			Verdict: enums.VerdictNeedsReview,
			Score:   judgment.Confidence,
			Reasons: []string{"Low confidence - requires human review"},
			Source:  enums.ValidationSourceOracle,
		}
	}
}

func hasContext(input Input) bool {
	return strings.TrimSpace(input.ServiceLine) != "" ||
		strings.TrimSpace(input.ServiceType) != "" ||
		strings.TrimSpace(input.ScopeOfWork) != ""
}

func firstBlacklisted(name, description string) (string, bool) {
	fields := []string{tokenField(name)}
	if strings.TrimSpace(description) != "" {
		fields = append(fields, tokenField(description))
	}
	for _, field := range fields {
		for _, term := range blacklistTerms {
			if containsTerm(field, term) {
				return term, true
			}
		}
	}
	return "", false
}

func keywordHits(name string) []string {
	field := tokenField(name)
	var hits []string
	for _, keyword := range maintenanceKeywords {
		if containsTerm(field, keyword) {
			hits = append(hits, keyword)
		}
	}
	return hits
}

// tokenField lowercases the value and rewrites punctuation to spaces so
// term matching is token bounded: "sales tax." still contains the token
// "tax" while "coffee" never matches "fee".
func tokenField(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}

func containsTerm(field, term string) bool {
	return strings.Contains(field, " "+term+" ")
}
