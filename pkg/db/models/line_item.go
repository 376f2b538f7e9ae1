package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/pkg/enums"
)

// LineItem is the persistent record of one submitted invoice line item and
// its position in the validation pipeline.
type LineItem struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RawName          string               `gorm:"column:raw_name;not null"`
	RawDescription   *string              `gorm:"column:raw_description"`
	Quantity         decimal.Decimal      `gorm:"column:quantity;type:numeric;not null;default:1"`
	Unit             *string              `gorm:"column:unit"`
	UnitPrice        *decimal.Decimal     `gorm:"column:unit_price;type:numeric"`
	ServiceLine      *string              `gorm:"column:service_line"`
	ServiceType      *string              `gorm:"column:service_type"`
	ScopeOfWork      *string              `gorm:"column:scope_of_work"`
	Status           enums.LineItemStatus `gorm:"column:status;type:line_item_status;not null;default:'new'"`
	CanonicalItemID  *uuid.UUID           `gorm:"column:canonical_item_id;type:uuid"`
	MatchKind        *enums.MatchKind     `gorm:"column:match_kind;type:match_kind"`
	MatchConfidence  *float64             `gorm:"column:match_confidence"`
	IngestPasses     int                  `gorm:"column:ingest_passes;not null;default:0"`
	PriceOutcome     *enums.PriceOutcome  `gorm:"column:price_outcome;type:price_outcome"`
	PriceNote        *string              `gorm:"column:price_note"`
	ExplanationNote  *string              `gorm:"column:explanation_note"`
	OrchestratorLock *string              `gorm:"column:orchestrator_lock"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
