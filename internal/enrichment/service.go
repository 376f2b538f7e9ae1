package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/pkg/db/models"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
)

type vendorSearcher interface {
	Search(ctx context.Context, query string) (Result, error)
}

type catalogStore interface {
	UpsertCanonicalItem(ctx context.Context, input catalog.UpsertItemInput) (*models.CanonicalItem, bool, error)
	UpsertVendorEntry(ctx context.Context, input catalog.UpsertVendorEntryInput) error
	WidenBand(ctx context.Context, id uuid.UUID, min, max decimal.Decimal) error
}

// IngestInput names the unmatched item to search vendors for.
type IngestInput struct {
	Query       string
	ServiceLine string
}

// IngestOutcome summarizes one ingestion pass. Failures aggregates the
// vendors and items that went wrong without sinking the pass; it is nil when
// everything succeeded.
type IngestOutcome struct {
	Sources    int
	ItemsAdded int
	Failures   error
}

type Service interface {
	Ingest(ctx context.Context, input IngestInput) (IngestOutcome, error)
}

type service struct {
	fetcher    vendorSearcher
	catalog    catalogStore
	classifier *Classifier
}

func NewService(fetcher vendorSearcher, store catalogStore, classifier *Classifier) (Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("vendor fetcher required")
	}
	if store == nil {
		return nil, fmt.Errorf("catalog store required")
	}
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &service{fetcher: fetcher, catalog: store, classifier: classifier}, nil
}

// Ingest searches every enabled vendor for the query and folds what they
// return into the canonical catalog. Partial results count as a completed
// pass; the pass itself only fails when no vendor could be reached at all,
// so the caller can retry without burning the item's ingestion budget.
func (s *service) Ingest(ctx context.Context, input IngestInput) (IngestOutcome, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return IngestOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "ingest query is required")
	}

	result, err := s.fetcher.Search(ctx, query)
	if err != nil {
		return IngestOutcome{}, err
	}
	if len(result.Items) == 0 && len(result.Failures) > 0 {
		combined := multierr.Combine(result.Failures...)
		return IngestOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, combined, "all vendor searches failed")
	}

	failures := append([]error(nil), result.Failures...)
	outcome := IngestOutcome{Sources: result.Sources}
	seenAt := time.Now().UTC()

	for _, item := range result.Items {
		kind := s.classifier.Classify(ctx, item.ItemName)
		unit := item.UnitOfMeasure

		canonical, created, err := s.catalog.UpsertCanonicalItem(ctx, catalog.UpsertItemInput{
			CanonicalName: item.ItemName,
			Kind:          kind,
			ServiceLine:   input.ServiceLine,
			Unit:          &unit,
		})
		if err != nil {
			failures = append(failures, fmt.Errorf("%s %q: %w", item.Vendor, item.ItemName, err))
			continue
		}
		if created {
			outcome.ItemsAdded++
		}

		var sku *string
		if item.SourceSKU != "" {
			sku = &item.SourceSKU
		}
		if err := s.catalog.UpsertVendorEntry(ctx, catalog.UpsertVendorEntryInput{
			Vendor:          item.Vendor,
			CanonicalItemID: canonical.ID,
			SourceURL:       item.SourceURL,
			SourceSKU:       sku,
			Title:           item.ItemName,
			Unit:            &unit,
			Price:           item.Price,
			SeenAt:          seenAt,
		}); err != nil {
			failures = append(failures, fmt.Errorf("%s %q: %w", item.Vendor, item.ItemName, err))
			continue
		}

		if err := s.catalog.WidenBand(ctx, canonical.ID, item.Price, item.Price); err != nil {
			failures = append(failures, fmt.Errorf("%s %q: widen band: %w", item.Vendor, item.ItemName, err))
		}
	}

	outcome.Failures = multierr.Combine(failures...)
	return outcome, nil
}
