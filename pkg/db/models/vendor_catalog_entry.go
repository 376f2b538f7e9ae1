package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VendorCatalogEntry caches the observed price range for a canonical item at
// one vendor. Ranges only ever widen on refresh.
type VendorCatalogEntry struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Vendor          string          `gorm:"column:vendor;not null;uniqueIndex:idx_vendor_catalog_entries_identity"`
	CanonicalItemID uuid.UUID       `gorm:"column:canonical_item_id;type:uuid;not null;uniqueIndex:idx_vendor_catalog_entries_identity"`
	SourceURL       string          `gorm:"column:source_url;not null"`
	SourceSKU       *string         `gorm:"column:source_sku"`
	Title           string          `gorm:"column:title;not null"`
	Unit            *string         `gorm:"column:unit"`
	MinPrice        decimal.Decimal `gorm:"column:min_price;type:numeric;not null"`
	MaxPrice        decimal.Decimal `gorm:"column:max_price;type:numeric;not null"`
	LastSeenAt      time.Time       `gorm:"column:last_seen_at;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
