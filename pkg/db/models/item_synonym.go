package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemSynonym maps an alternate spelling to a canonical catalog item. Weight
// expresses match confidence, below exact (1.0) and above the fuzzy floor.
type ItemSynonym struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CanonicalItemID   uuid.UUID `gorm:"column:canonical_item_id;type:uuid;not null;uniqueIndex:idx_item_synonyms_identity"`
	Synonym           string    `gorm:"column:synonym;not null"`
	NormalizedSynonym string    `gorm:"column:normalized_synonym;not null;uniqueIndex:idx_item_synonyms_identity"`
	Weight            float64   `gorm:"column:weight;not null;default:0.95"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
