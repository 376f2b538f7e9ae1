package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	canonicalItems := `
CREATE TABLE IF NOT EXISTS canonical_items (
  id TEXT PRIMARY KEY,
  canonical_name TEXT NOT NULL,
  normalized_name TEXT NOT NULL,
  kind TEXT NOT NULL,
  service_line TEXT NOT NULL DEFAULT '',
  unit TEXT,
  popularity INTEGER NOT NULL DEFAULT 0,
  band_min NUMERIC,
  band_max NUMERIC,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
`
	synonyms := `
CREATE TABLE IF NOT EXISTS item_synonyms (
  id TEXT PRIMARY KEY,
  canonical_item_id TEXT NOT NULL,
  synonym TEXT NOT NULL,
  normalized_synonym TEXT NOT NULL,
  weight REAL NOT NULL DEFAULT 0.95,
  created_at DATETIME
);
`
	vendorEntries := `
CREATE TABLE IF NOT EXISTS vendor_catalog_entries (
  id TEXT PRIMARY KEY,
  vendor TEXT NOT NULL,
  canonical_item_id TEXT NOT NULL,
  source_url TEXT NOT NULL,
  source_sku TEXT,
  title TEXT NOT NULL,
  unit TEXT,
  min_price NUMERIC NOT NULL,
  max_price NUMERIC NOT NULL,
  last_seen_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
`
	require.NoError(t, db.Exec(canonicalItems).Error)
	require.NoError(t, db.Exec(synonyms).Error)
	require.NoError(t, db.Exec(vendorEntries).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_canonical_items_identity ON canonical_items (normalized_name, kind, service_line)`).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_item_synonyms_identity ON item_synonyms (canonical_item_id, normalized_synonym)`).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_vendor_catalog_entries_identity ON vendor_catalog_entries (vendor, canonical_item_id)`).Error)
	return db
}

func newCanonicalItem(t *testing.T, db *gorm.DB, name, serviceLine string, kind enums.ItemKind, popularity int64) *models.CanonicalItem {
	t.Helper()

	item := &models.CanonicalItem{
		ID:             uuid.New(),
		CanonicalName:  name,
		NormalizedName: Normalize(name),
		Kind:           kind,
		ServiceLine:    serviceLine,
		Popularity:     popularity,
		IsActive:       true,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestUpsertCanonicalItemDedupes(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first, created, err := repo.UpsertCanonicalItem(ctx, UpsertItemInput{
		CanonicalName: "Copper Pipe",
		Kind:          enums.ItemKindMaterial,
		ServiceLine:   "plumbing",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "copper pipe", first.NormalizedName)

	second, created, err := repo.UpsertCanonicalItem(ctx, UpsertItemInput{
		CanonicalName: "copper  PIPE",
		Kind:          enums.ItemKindMaterial,
		ServiceLine:   "plumbing",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// a different kind is a distinct identity
	third, created, err := repo.UpsertCanonicalItem(ctx, UpsertItemInput{
		CanonicalName: "Copper Pipe",
		Kind:          enums.ItemKindEquipment,
		ServiceLine:   "plumbing",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestBumpPopularityIsBoundedAndMonotonic(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := newCanonicalItem(t, db, "Ball Valve", "plumbing", enums.ItemKindMaterial, 0)

	require.NoError(t, repo.BumpPopularity(ctx, item.ID))
	require.NoError(t, repo.BumpPopularity(ctx, item.ID))

	reloaded, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.Popularity)

	require.NoError(t, db.Model(&models.CanonicalItem{}).Where("id = ?", item.ID).Update("popularity", popularityCeiling).Error)
	require.NoError(t, repo.BumpPopularity(ctx, item.ID))

	reloaded, err = repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(popularityCeiling), reloaded.Popularity)
}

func TestWidenBandNeverNarrows(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := newCanonicalItem(t, db, "Air Filter", "hvac", enums.ItemKindMaterial, 0)

	require.NoError(t, repo.WidenBand(ctx, item.ID, decimal.NewFromInt(10), decimal.NewFromInt(20)))
	reloaded, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.BandMin)
	require.NotNil(t, reloaded.BandMax)
	assert.True(t, reloaded.BandMin.Equal(decimal.NewFromInt(10)))
	assert.True(t, reloaded.BandMax.Equal(decimal.NewFromInt(20)))

	// a narrower observation is a no-op
	require.NoError(t, repo.WidenBand(ctx, item.ID, decimal.NewFromInt(12), decimal.NewFromInt(18)))
	reloaded, err = repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.BandMin.Equal(decimal.NewFromInt(10)))
	assert.True(t, reloaded.BandMax.Equal(decimal.NewFromInt(20)))

	require.NoError(t, repo.WidenBand(ctx, item.ID, decimal.NewFromInt(5), decimal.NewFromInt(25)))
	reloaded, err = repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.BandMin.Equal(decimal.NewFromInt(5)))
	assert.True(t, reloaded.BandMax.Equal(decimal.NewFromInt(25)))
}

func TestUpsertVendorEntryWidensRange(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := newCanonicalItem(t, db, "Circuit Breaker", "electrical", enums.ItemKindMaterial, 0)
	seen := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	base := UpsertVendorEntryInput{
		Vendor:          "grainger",
		CanonicalItemID: item.ID,
		SourceURL:       "https://vendor.example/cb-20a",
		Title:           "20A Circuit Breaker",
		Price:           decimal.NewFromInt(10),
		SeenAt:          seen,
	}
	require.NoError(t, repo.UpsertVendorEntry(ctx, base))

	base.Price = decimal.NewFromInt(15)
	base.SeenAt = seen.Add(24 * time.Hour)
	require.NoError(t, repo.UpsertVendorEntry(ctx, base))

	base.Price = decimal.NewFromInt(5)
	base.SeenAt = seen.Add(48 * time.Hour)
	require.NoError(t, repo.UpsertVendorEntry(ctx, base))

	var entries []models.VendorCatalogEntry
	require.NoError(t, db.Where("canonical_item_id = ?", item.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].MinPrice.Equal(decimal.NewFromInt(5)))
	assert.True(t, entries[0].MaxPrice.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, seen.Add(48*time.Hour).Unix(), entries[0].LastSeenAt.UTC().Unix())
}

func TestVendorBandAggregatesAcrossVendors(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := newCanonicalItem(t, db, "PVC Pipe", "plumbing", enums.ItemKindMaterial, 0)

	require.NoError(t, repo.UpsertVendorEntry(ctx, UpsertVendorEntryInput{
		Vendor: "grainger", CanonicalItemID: item.ID, SourceURL: "https://a", Title: "PVC Pipe", Price: decimal.NewFromInt(8),
	}))
	require.NoError(t, repo.UpsertVendorEntry(ctx, UpsertVendorEntryInput{
		Vendor: "fastenal", CanonicalItemID: item.ID, SourceURL: "https://b", Title: "PVC Pipe", Price: decimal.NewFromInt(14),
	}))

	band, err := repo.VendorBand(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, band)
	assert.True(t, band.Min.Equal(decimal.NewFromInt(8)))
	assert.True(t, band.Max.Equal(decimal.NewFromInt(14)))

	missing, err := repo.VendorBand(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindExactScopesToServiceLine(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := newCanonicalItem(t, db, "Copper Pipe", "plumbing", enums.ItemKindMaterial, 3)

	found, err := repo.FindExact(ctx, "copper pipe", "plumbing")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, item.ID, found.ID)

	missing, err := repo.FindExact(ctx, "copper pipe", "electrical")
	require.NoError(t, err)
	assert.Nil(t, missing)

	unscoped, err := repo.FindExact(ctx, "copper pipe", "")
	require.NoError(t, err)
	require.NotNil(t, unscoped)
	assert.Equal(t, item.ID, unscoped.ID)

	require.NoError(t, db.Model(&models.CanonicalItem{}).Where("id = ?", item.ID).Update("is_active", false).Error)
	inactive, err := repo.FindExact(ctx, "copper pipe", "plumbing")
	require.NoError(t, err)
	assert.Nil(t, inactive)
}

func TestFindSynonymReturnsWeight(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := newCanonicalItem(t, db, "Copper Pipe", "plumbing", enums.ItemKindMaterial, 0)
	require.NoError(t, db.Create(&models.ItemSynonym{
		ID:                uuid.New(),
		CanonicalItemID:   item.ID,
		Synonym:           "Cu Pipe",
		NormalizedSynonym: "cu pipe",
		Weight:            0.95,
	}).Error)

	found, weight, err := repo.FindSynonym(ctx, "cu pipe", "plumbing")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, item.ID, found.ID)
	assert.InDelta(t, 0.95, weight, 1e-9)

	missing, _, err := repo.FindSynonym(ctx, "cu pipe", "electrical")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSuggestRanksPrefixHitsByScore(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	newCanonicalItem(t, db, "Copper Pipe", "plumbing", enums.ItemKindMaterial, 5)
	newCanonicalItem(t, db, "Copper Fitting", "plumbing", enums.ItemKindMaterial, 9)
	newCanonicalItem(t, db, "Circuit Breaker", "electrical", enums.ItemKindMaterial, 50)

	suggestions, err := repo.Suggest(ctx, "copper", "", 10)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	// the shorter completion is the closer match regardless of popularity
	assert.Equal(t, "Copper Pipe", suggestions[0].CanonicalName)
	assert.Equal(t, "Copper Fitting", suggestions[1].CanonicalName)
}

func TestSuggestBreaksScoreTiesByPopularity(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	newCanonicalItem(t, db, "Ball Valve", "plumbing", enums.ItemKindMaterial, 2)
	newCanonicalItem(t, db, "Ball Valve", "hvac", enums.ItemKindMaterial, 7)

	suggestions, err := repo.Suggest(ctx, "ball valve", "", 10)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "hvac", suggestions[0].ServiceLine)
	assert.Equal(t, "plumbing", suggestions[1].ServiceLine)
}

func TestListStaleVendorEntries(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	item := newCanonicalItem(t, db, "Air Filter", "hvac", enums.ItemKindMaterial, 0)
	old := time.Now().Add(-10 * 24 * time.Hour)
	fresh := time.Now()

	require.NoError(t, repo.UpsertVendorEntry(ctx, UpsertVendorEntryInput{
		Vendor: "grainger", CanonicalItemID: item.ID, SourceURL: "https://a", Title: "Air Filter", Price: decimal.NewFromInt(4), SeenAt: old,
	}))
	require.NoError(t, repo.UpsertVendorEntry(ctx, UpsertVendorEntryInput{
		Vendor: "fastenal", CanonicalItemID: item.ID, SourceURL: "https://b", Title: "Air Filter", Price: decimal.NewFromInt(6), SeenAt: fresh,
	}))

	stale, err := repo.ListStaleVendorEntries(ctx, time.Now().Add(-7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "grainger", stale[0].Vendor)
}
