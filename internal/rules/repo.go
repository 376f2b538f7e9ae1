package rules

import (
	"context"

	"gorm.io/gorm"

	"github.com/veriline/veriline-backend/internal/repo"
	"github.com/veriline/veriline-backend/pkg/db/models"
)

// Repository loads batch-scoped business rules.
type Repository struct {
	repo.Base
}

// NewRepository constructs a rules repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// ListActiveForSubjects returns active rules whose subject matches any of
// the normalized names. Service-line scoping is applied by the caller since
// a batch can span service lines.
func (r *Repository) ListActiveForSubjects(ctx context.Context, subjects []string) ([]models.ItemRule, error) {
	if len(subjects) == 0 {
		return nil, nil
	}
	var rules []models.ItemRule
	err := r.DB(ctx).
		Where("is_active = ?", true).
		Where("subject_normalized IN ?", subjects).
		Order("rule_type ASC").
		Order("subject_normalized ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
