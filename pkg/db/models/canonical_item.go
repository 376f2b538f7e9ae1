package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/pkg/enums"
)

// CanonicalItem is one entry in the facility-maintenance catalog. Popularity
// only ever grows; the price band only ever widens.
type CanonicalItem struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CanonicalName  string           `gorm:"column:canonical_name;not null"`
	NormalizedName string           `gorm:"column:normalized_name;not null;uniqueIndex:idx_canonical_items_identity"`
	Kind           enums.ItemKind   `gorm:"column:kind;type:item_kind;not null;uniqueIndex:idx_canonical_items_identity"`
	ServiceLine    string           `gorm:"column:service_line;not null;default:'';uniqueIndex:idx_canonical_items_identity"`
	Unit           *string          `gorm:"column:unit"`
	Popularity     int64            `gorm:"column:popularity;not null;default:0"`
	BandMin        *decimal.Decimal `gorm:"column:band_min;type:numeric"`
	BandMax        *decimal.Decimal `gorm:"column:band_max;type:numeric"`
	IsActive       bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
