package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/internal/enrichment"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/logger"
)

const (
	vendorSyncStaleAfter = 7 * 24 * time.Hour
	vendorSyncBatchSize  = 100
)

type vendorSyncCatalog interface {
	ListStaleVendorEntries(ctx context.Context, olderThan time.Time, limit int) ([]models.VendorCatalogEntry, error)
	UpsertVendorEntry(ctx context.Context, input catalog.UpsertVendorEntryInput) error
	WidenBand(ctx context.Context, id uuid.UUID, min, max decimal.Decimal) error
}

type vendorSearcher interface {
	Search(ctx context.Context, query string) (enrichment.Result, error)
}

type VendorSyncJobParams struct {
	Logger     *logger.Logger
	Catalog    vendorSyncCatalog
	Fetcher    vendorSearcher
	StaleAfter time.Duration
	BatchSize  int
}

// NewVendorSyncJob refreshes vendor catalog entries that have not been seen
// recently. Each stale entry is re-queried against its vendor and the
// observed prices fold back into the canonical item's band. Bands only
// widen, so a sync pass can never invalidate a previously accepted price.
func NewVendorSyncJob(params VendorSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Fetcher == nil {
		return nil, fmt.Errorf("vendor fetcher required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = vendorSyncStaleAfter
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = vendorSyncBatchSize
	}
	return &vendorSyncJob{
		logg:       params.Logger,
		catalog:    params.Catalog,
		fetcher:    params.Fetcher,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}, nil
}

type vendorSyncJob struct {
	logg       *logger.Logger
	catalog    vendorSyncCatalog
	fetcher    vendorSearcher
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *vendorSyncJob) Name() string { return "vendor-sync" }

func (j *vendorSyncJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	entries, err := j.catalog.ListStaleVendorEntries(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stale vendor entries: %w", err)
	}

	var refreshed, missed, failed int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := j.refreshEntry(ctx, entry)
		switch {
		case err != nil:
			failed++
			entryCtx := j.logg.WithFields(ctx, map[string]any{
				"vendor":            entry.Vendor,
				"canonical_item_id": entry.CanonicalItemID,
			})
			j.logg.Error(entryCtx, "vendor entry refresh failed", err)
		case ok:
			refreshed++
		default:
			missed++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"stale":     len(entries),
		"refreshed": refreshed,
		"missed":    missed,
		"failed":    failed,
	})
	j.logg.Info(logCtx, "vendor sync pass complete")
	return nil
}

// refreshEntry re-queries the entry's vendor by title. Returns false when
// the vendor no longer lists a matching product; the entry stays stale and
// the next pass retries it.
func (j *vendorSyncJob) refreshEntry(ctx context.Context, entry models.VendorCatalogEntry) (bool, error) {
	result, err := j.fetcher.Search(ctx, entry.Title)
	if err != nil {
		return false, fmt.Errorf("vendor search: %w", err)
	}

	seenAt := j.now().UTC()
	var min, max decimal.Decimal
	var found bool
	for _, item := range result.Items {
		if !strings.EqualFold(item.Vendor, entry.Vendor) {
			continue
		}
		input := catalog.UpsertVendorEntryInput{
			Vendor:          entry.Vendor,
			CanonicalItemID: entry.CanonicalItemID,
			SourceURL:       item.SourceURL,
			Title:           item.ItemName,
			Price:           item.Price,
			SeenAt:          seenAt,
		}
		if item.SourceSKU != "" {
			sku := item.SourceSKU
			input.SourceSKU = &sku
		}
		if item.UnitOfMeasure != "" {
			unit := item.UnitOfMeasure
			input.Unit = &unit
		}
		if err := j.catalog.UpsertVendorEntry(ctx, input); err != nil {
			return false, fmt.Errorf("upsert vendor entry: %w", err)
		}
		if !found || item.Price.LessThan(min) {
			min = item.Price
		}
		if !found || item.Price.GreaterThan(max) {
			max = item.Price
		}
		found = true
	}
	if !found {
		return false, nil
	}

	if err := j.catalog.WidenBand(ctx, entry.CanonicalItemID, min, max); err != nil {
		return false, fmt.Errorf("widen band: %w", err)
	}
	return true, nil
}
