package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/veriline/veriline-backend/internal/repo"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
)

// popularityCeiling bounds the match-driven popularity counter so ranking
// stays meaningful and the bump stays a single conditional UPDATE.
const popularityCeiling = 1_000_000

// candidateScanLimit caps how many active items a fuzzy scan considers.
const candidateScanLimit = 500

// Band is a [min,max] unit price range.
type Band struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Suggestion is one ranked catalog suggestion for picker UIs.
type Suggestion struct {
	ID            uuid.UUID      `json:"id"`
	CanonicalName string         `json:"canonicalName"`
	Kind          enums.ItemKind `json:"kind"`
	ServiceLine   string         `json:"serviceLine,omitempty"`
	Unit          *string        `json:"unit,omitempty"`
	Popularity    int64          `json:"popularity"`
	Score         float64        `json:"score"`
}

// UpsertItemInput identifies a canonical item to create or load.
type UpsertItemInput struct {
	CanonicalName string
	Kind          enums.ItemKind
	ServiceLine   string
	Unit          *string
}

// UpsertVendorEntryInput carries one vendor price observation.
type UpsertVendorEntryInput struct {
	Vendor          string
	CanonicalItemID uuid.UUID
	SourceURL       string
	SourceSKU       *string
	Title           string
	Unit            *string
	Price           decimal.Decimal
	SeenAt          time.Time
}

// Repository encapsulates canonical catalog persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a catalog repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID loads one canonical item.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CanonicalItem, error) {
	var item models.CanonicalItem
	if err := r.DB(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindExact returns the active item whose normalized name equals the query,
// scoped to the service line when one is supplied.
func (r *Repository) FindExact(ctx context.Context, normalizedName, serviceLine string) (*models.CanonicalItem, error) {
	query := r.DB(ctx).
		Where("normalized_name = ?", normalizedName).
		Where("is_active = ?", true)
	if serviceLine != "" {
		query = query.Where("service_line = ?", serviceLine)
	}

	var item models.CanonicalItem
	if err := query.Order("popularity DESC").Order("canonical_name ASC").First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// FindSynonym resolves a normalized synonym to its active canonical item and
// returns the synonym weight used as match confidence.
func (r *Repository) FindSynonym(ctx context.Context, normalizedSynonym, serviceLine string) (*models.CanonicalItem, float64, error) {
	type row struct {
		models.CanonicalItem
		Weight float64 `gorm:"column:weight"`
	}

	query := r.DB(ctx).
		Table("item_synonyms s").
		Select("c.*, s.weight").
		Joins("JOIN canonical_items c ON c.id = s.canonical_item_id").
		Where("s.normalized_synonym = ?", normalizedSynonym).
		Where("c.is_active = ?", true)
	if serviceLine != "" {
		query = query.Where("c.service_line = ?", serviceLine)
	}

	var result row
	if err := query.Order("s.weight DESC").Order("c.popularity DESC").Order("c.canonical_name ASC").First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	item := result.CanonicalItem
	return &item, result.Weight, nil
}

// ListActiveCandidates returns active items for an in-process fuzzy scan,
// ordered so equal-similarity ties resolve deterministically downstream.
func (r *Repository) ListActiveCandidates(ctx context.Context, serviceLine string) ([]models.CanonicalItem, error) {
	query := r.DB(ctx).
		Model(&models.CanonicalItem{}).
		Where("is_active = ?", true)
	if serviceLine != "" {
		query = query.Where("service_line = ?", serviceLine)
	}

	var items []models.CanonicalItem
	if err := query.
		Order("popularity DESC").
		Order("canonical_name ASC").
		Limit(candidateScanLimit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// BumpPopularity increments an item's popularity by one, bounded by the
// ceiling. Single conditional UPDATE so concurrent matches never lose bumps.
func (r *Repository) BumpPopularity(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Exec(`UPDATE canonical_items SET popularity = popularity + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND popularity < ?`, id, popularityCeiling).
		Error
}

// WidenBand grows the item's price band to include [min,max]. Bands only ever
// widen; a narrower observation is a no-op.
func (r *Repository) WidenBand(ctx context.Context, id uuid.UUID, min, max decimal.Decimal) error {
	return r.DB(ctx).
		Exec(`UPDATE canonical_items SET
  band_min = CASE WHEN band_min IS NULL OR band_min > ? THEN ? ELSE band_min END,
  band_max = CASE WHEN band_max IS NULL OR band_max < ? THEN ? ELSE band_max END,
  updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, min, min, max, max, id).
		Error
}

// UpsertCanonicalItem inserts the item if its identity (normalized name,
// kind, service line) is new, otherwise loads the existing row. The second
// return reports whether a row was created.
func (r *Repository) UpsertCanonicalItem(ctx context.Context, input UpsertItemInput) (*models.CanonicalItem, bool, error) {
	normalized := Normalize(input.CanonicalName)
	if normalized == "" {
		return nil, false, errors.New("canonical name is required")
	}
	if !input.Kind.IsValid() {
		return nil, false, errors.New("invalid item kind")
	}

	id := uuid.New()
	insert := r.DB(ctx).Exec(`INSERT INTO canonical_items
  (id, canonical_name, normalized_name, kind, service_line, unit, popularity, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (normalized_name, kind, service_line) DO NOTHING`,
		id, strings.TrimSpace(input.CanonicalName), normalized, input.Kind, input.ServiceLine, input.Unit, true)
	if insert.Error != nil {
		return nil, false, insert.Error
	}

	var item models.CanonicalItem
	if err := r.DB(ctx).
		Where("normalized_name = ? AND kind = ? AND service_line = ?", normalized, input.Kind, input.ServiceLine).
		First(&item).Error; err != nil {
		return nil, false, err
	}
	return &item, insert.RowsAffected > 0, nil
}

// UpsertVendorEntry records one vendor price observation. On conflict the
// entry's price range widens monotonically and last_seen_at refreshes.
func (r *Repository) UpsertVendorEntry(ctx context.Context, input UpsertVendorEntryInput) error {
	if input.Vendor == "" {
		return errors.New("vendor is required")
	}
	if input.CanonicalItemID == uuid.Nil {
		return errors.New("canonical item id is required")
	}
	if input.Price.IsNegative() {
		return errors.New("price must be non-negative")
	}

	seenAt := input.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	return r.DB(ctx).Exec(`INSERT INTO vendor_catalog_entries
  (id, vendor, canonical_item_id, source_url, source_sku, title, unit, min_price, max_price, last_seen_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (vendor, canonical_item_id) DO UPDATE SET
  min_price = CASE WHEN excluded.min_price < vendor_catalog_entries.min_price THEN excluded.min_price ELSE vendor_catalog_entries.min_price END,
  max_price = CASE WHEN excluded.max_price > vendor_catalog_entries.max_price THEN excluded.max_price ELSE vendor_catalog_entries.max_price END,
  source_url = excluded.source_url,
  source_sku = excluded.source_sku,
  title = excluded.title,
  unit = excluded.unit,
  last_seen_at = excluded.last_seen_at,
  updated_at = CURRENT_TIMESTAMP`,
		uuid.New(), input.Vendor, input.CanonicalItemID, input.SourceURL, input.SourceSKU,
		input.Title, input.Unit, input.Price, input.Price, seenAt).
		Error
}

// VendorBand aggregates vendor observations into a substitute price band.
// Returns nil when the item has no vendor entries.
func (r *Repository) VendorBand(ctx context.Context, canonicalItemID uuid.UUID) (*Band, error) {
	var row struct {
		BandMin *decimal.Decimal `gorm:"column:band_min"`
		BandMax *decimal.Decimal `gorm:"column:band_max"`
	}
	err := r.DB(ctx).
		Table("vendor_catalog_entries").
		Select("MIN(min_price) AS band_min, MAX(max_price) AS band_max").
		Where("canonical_item_id = ?", canonicalItemID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.BandMin == nil || row.BandMax == nil {
		return nil, nil
	}
	return &Band{Min: *row.BandMin, Max: *row.BandMax}, nil
}

// ListStaleVendorEntries returns entries not refreshed since the cutoff,
// oldest first, for the vendor sync job.
func (r *Repository) ListStaleVendorEntries(ctx context.Context, olderThan time.Time, limit int) ([]models.VendorCatalogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.VendorCatalogEntry
	err := r.DB(ctx).
		Where("last_seen_at < ?", olderThan).
		Order("last_seen_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Suggest ranks active catalog items against a query for picker UIs.
// Ordering is deterministic: prefix hits first, then similarity, popularity,
// and canonical name.
func (r *Repository) Suggest(ctx context.Context, query, serviceLine string, limit int) ([]Suggestion, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, errors.New("query is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	candidates, err := r.ListActiveCandidates(ctx, serviceLine)
	if err != nil {
		return nil, err
	}

	type scored struct {
		suggestion Suggestion
		prefix     bool
	}

	ranked := make([]scored, 0, len(candidates))
	for _, item := range candidates {
		prefix := strings.HasPrefix(item.NormalizedName, normalized)
		score := Similarity(normalized, item.NormalizedName)
		if !prefix && score < 0.3 {
			continue
		}
		ranked = append(ranked, scored{
			suggestion: Suggestion{
				ID:            item.ID,
				CanonicalName: item.CanonicalName,
				Kind:          item.Kind,
				ServiceLine:   item.ServiceLine,
				Unit:          item.Unit,
				Popularity:    item.Popularity,
				Score:         score,
			},
			prefix: prefix,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].prefix != ranked[j].prefix {
			return ranked[i].prefix
		}
		if ranked[i].suggestion.Score != ranked[j].suggestion.Score {
			return ranked[i].suggestion.Score > ranked[j].suggestion.Score
		}
		if ranked[i].suggestion.Popularity != ranked[j].suggestion.Popularity {
			return ranked[i].suggestion.Popularity > ranked[j].suggestion.Popularity
		}
		return ranked[i].suggestion.CanonicalName < ranked[j].suggestion.CanonicalName
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	suggestions := make([]Suggestion, len(ranked))
	for i, entry := range ranked {
		suggestions[i] = entry.suggestion
	}
	return suggestions, nil
}
