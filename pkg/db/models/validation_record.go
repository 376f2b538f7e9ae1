package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/veriline/veriline-backend/pkg/enums"
)

// ValidationRecord is one append-only verdict for a line item. The newest
// record is the authoritative validation outcome.
type ValidationRecord struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LineItemID uuid.UUID              `gorm:"column:line_item_id;type:uuid;not null;index"`
	Verdict    enums.Verdict          `gorm:"column:verdict;type:verdict;not null"`
	Score      float64                `gorm:"column:score;not null"`
	Reasons    pq.StringArray         `gorm:"column:reasons;type:text[]"`
	Source     enums.ValidationSource `gorm:"column:source;type:validation_source;not null;default:'rules'"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
}
