package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
)

type rulesRepository interface {
	ListActiveForSubjects(ctx context.Context, subjects []string) ([]models.ItemRule, error)
}

// BatchItem is one submitted line item as the rules engine sees it.
type BatchItem struct {
	Name        string
	Quantity    decimal.Decimal
	ServiceLine string
}

// Violation is one advisory rule hit. Violations annotate the batch
// response; they never drive the state machine.
type Violation struct {
	RuleType enums.RuleType `json:"ruleType"`
	Subject  string         `json:"subject"`
	Object   string         `json:"object,omitempty"`
	Detail   string         `json:"detail"`
}

// Service evaluates batch-scoped business rules against a submission.
type Service interface {
	Evaluate(ctx context.Context, items []BatchItem) ([]Violation, error)
}

type service struct {
	repo rulesRepository
}

// NewService builds the rules engine.
func NewService(repo rulesRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rules repository required")
	}
	return &service{repo: repo}, nil
}

// Evaluate matches active rules against the batch by normalized name. A rule
// scoped to a service line only sees the batch items on that service line;
// an unscoped rule sees the whole batch.
func (s *service) Evaluate(ctx context.Context, items []BatchItem) ([]Violation, error) {
	if len(items) == 0 {
		return nil, nil
	}

	normalized := make([]string, len(items))
	seen := make(map[string]struct{}, len(items))
	subjects := make([]string, 0, len(items))
	for i, item := range items {
		normalized[i] = catalog.Normalize(item.Name)
		if _, ok := seen[normalized[i]]; !ok {
			seen[normalized[i]] = struct{}{}
			subjects = append(subjects, normalized[i])
		}
	}

	matched, err := s.repo.ListActiveForSubjects(ctx, subjects)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, rule := range matched {
		scoped := scopedIndexes(items, normalized, rule.ServiceLine)
		subjectIdx := withName(scoped, normalized, rule.SubjectNormalized)
		if len(subjectIdx) == 0 {
			continue
		}

		switch rule.RuleType {
		case enums.RuleTypeMaxQty:
			if rule.MaxQty == nil {
				continue
			}
			total := decimal.Zero
			for _, i := range subjectIdx {
				total = total.Add(items[i].Quantity)
			}
			if total.GreaterThan(*rule.MaxQty) {
				violations = append(violations, Violation{
					RuleType: rule.RuleType,
					Subject:  rule.SubjectNormalized,
					Detail:   detail(rule, fmt.Sprintf("quantity %s exceeds the maximum %s", total, rule.MaxQty)),
				})
			}
		case enums.RuleTypeCannotDuplicate:
			if len(subjectIdx) > 1 {
				violations = append(violations, Violation{
					RuleType: rule.RuleType,
					Subject:  rule.SubjectNormalized,
					Detail:   detail(rule, fmt.Sprintf("appears %d times in one batch", len(subjectIdx))),
				})
			}
		case enums.RuleTypeMutuallyExclusive:
			if rule.ObjectNormalized == nil {
				continue
			}
			if len(withName(scoped, normalized, *rule.ObjectNormalized)) > 0 {
				violations = append(violations, Violation{
					RuleType: rule.RuleType,
					Subject:  rule.SubjectNormalized,
					Object:   *rule.ObjectNormalized,
					Detail:   detail(rule, fmt.Sprintf("may not be submitted together with %s", *rule.ObjectNormalized)),
				})
			}
		case enums.RuleTypeRequires:
			if rule.ObjectNormalized == nil {
				continue
			}
			if len(withName(scoped, normalized, *rule.ObjectNormalized)) == 0 {
				violations = append(violations, Violation{
					RuleType: rule.RuleType,
					Subject:  rule.SubjectNormalized,
					Object:   *rule.ObjectNormalized,
					Detail:   detail(rule, fmt.Sprintf("requires %s in the same batch", *rule.ObjectNormalized)),
				})
			}
		}
	}
	return violations, nil
}

func scopedIndexes(items []BatchItem, normalized []string, serviceLine *string) []int {
	idx := make([]int, 0, len(items))
	for i := range items {
		if serviceLine != nil && items[i].ServiceLine != *serviceLine {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func withName(scoped []int, normalized []string, name string) []int {
	var idx []int
	for _, i := range scoped {
		if normalized[i] == name {
			idx = append(idx, i)
		}
	}
	return idx
}

func detail(rule models.ItemRule, generated string) string {
	if rule.Note != nil && *rule.Note != "" {
		return *rule.Note
	}
	return fmt.Sprintf("%s %s", rule.SubjectNormalized, generated)
}
