package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/pkg/enums"
)

// ItemRule is a batch-scoped business rule keyed on normalized item names.
type ItemRule struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RuleType          enums.RuleType   `gorm:"column:rule_type;type:rule_type;not null"`
	ServiceLine       *string          `gorm:"column:service_line"`
	SubjectNormalized string           `gorm:"column:subject_normalized;not null;index"`
	ObjectNormalized  *string          `gorm:"column:object_normalized"`
	MaxQty            *decimal.Decimal `gorm:"column:max_qty;type:numeric"`
	Note              *string          `gorm:"column:note"`
	IsActive          bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
}
