package enrichment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
)

type stubFetcher struct {
	result    Result
	err       error
	lastQuery string
}

func (s *stubFetcher) Search(ctx context.Context, query string) (Result, error) {
	s.lastQuery = query
	return s.result, s.err
}

type widenCall struct {
	id       uuid.UUID
	min, max decimal.Decimal
}

type stubCatalog struct {
	known    map[string]uuid.UUID
	upserts  []catalog.UpsertItemInput
	entries  []catalog.UpsertVendorEntryInput
	widened  []widenCall
	entryErr map[string]error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{known: map[string]uuid.UUID{}, entryErr: map[string]error{}}
}

func (s *stubCatalog) UpsertCanonicalItem(ctx context.Context, input catalog.UpsertItemInput) (*models.CanonicalItem, bool, error) {
	s.upserts = append(s.upserts, input)
	if id, ok := s.known[input.CanonicalName]; ok {
		return &models.CanonicalItem{ID: id, CanonicalName: input.CanonicalName, Kind: input.Kind}, false, nil
	}
	id := uuid.New()
	s.known[input.CanonicalName] = id
	return &models.CanonicalItem{ID: id, CanonicalName: input.CanonicalName, Kind: input.Kind}, true, nil
}

func (s *stubCatalog) UpsertVendorEntry(ctx context.Context, input catalog.UpsertVendorEntryInput) error {
	if err := s.entryErr[input.Title]; err != nil {
		return err
	}
	s.entries = append(s.entries, input)
	return nil
}

func (s *stubCatalog) WidenBand(ctx context.Context, id uuid.UUID, min, max decimal.Decimal) error {
	s.widened = append(s.widened, widenCall{id: id, min: min, max: max})
	return nil
}

func newIngestService(t *testing.T, fetcher *stubFetcher, store *stubCatalog) Service {
	t.Helper()
	svc, err := NewService(fetcher, store, NewClassifier(nil))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func parsedItem(vendor, name, price string) ParsedItem {
	return ParsedItem{
		Vendor:        vendor,
		SourceURL:     "https://" + vendor + ".example/p/1",
		SourceSKU:     "SKU-1",
		ItemName:      name,
		UnitOfMeasure: "each",
		PackQty:       1,
		Price:         decimal.RequireFromString(price),
		Currency:      "USD",
	}
}

func TestIngestAddsNewItemsAndWidensBands(t *testing.T) {
	store := newStubCatalog()
	seededID := uuid.New()
	store.known["1/2 in PVC Pipe 10 ft"] = seededID

	fetcher := &stubFetcher{result: Result{
		Items: []ParsedItem{
			parsedItem("grainger", "1/2 in PVC Pipe 10 ft", "12.40"),
			parsedItem("zoro", "Galvanized pipe strap", "0.89"),
		},
		Sources: 2,
	}}
	svc := newIngestService(t, fetcher, store)

	outcome, err := svc.Ingest(context.Background(), IngestInput{Query: "  pvc pipe ", ServiceLine: "Plumbing"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if fetcher.lastQuery != "pvc pipe" {
		t.Errorf("query = %q, want trimmed", fetcher.lastQuery)
	}
	if outcome.Sources != 2 {
		t.Errorf("Sources = %d, want 2", outcome.Sources)
	}
	if outcome.ItemsAdded != 1 {
		t.Errorf("ItemsAdded = %d, want 1 (the pipe already existed)", outcome.ItemsAdded)
	}
	if outcome.Failures != nil {
		t.Errorf("Failures = %v, want nil", outcome.Failures)
	}

	if len(store.entries) != 2 {
		t.Fatalf("vendor entries = %d, want 2", len(store.entries))
	}
	first := store.entries[0]
	if first.Vendor != "grainger" || first.CanonicalItemID != seededID {
		t.Errorf("entry = %+v, want grainger entry on the seeded item", first)
	}
	if first.SourceSKU == nil || *first.SourceSKU != "SKU-1" {
		t.Errorf("SourceSKU = %v", first.SourceSKU)
	}
	if first.Unit == nil || *first.Unit != "each" {
		t.Errorf("Unit = %v", first.Unit)
	}
	if first.SeenAt.IsZero() {
		t.Error("SeenAt not stamped")
	}

	if len(store.widened) != 2 {
		t.Fatalf("widen calls = %d, want 2", len(store.widened))
	}
	if store.widened[0].id != seededID {
		t.Errorf("widened id = %s, want seeded item", store.widened[0].id)
	}
	want := mustDecimal(t, "12.40")
	if !store.widened[0].min.Equal(want) || !store.widened[0].max.Equal(want) {
		t.Errorf("widened band = [%s, %s], want single observation [12.40, 12.40]",
			store.widened[0].min, store.widened[0].max)
	}

	for _, upsert := range store.upserts {
		if upsert.ServiceLine != "Plumbing" {
			t.Errorf("ServiceLine = %q, want Plumbing", upsert.ServiceLine)
		}
	}
}

func TestIngestClassifiesItemsBeforeUpsert(t *testing.T) {
	store := newStubCatalog()
	fetcher := &stubFetcher{result: Result{
		Items: []ParsedItem{
			parsedItem("grainger", "Extension ladder 24 ft", "289.00"),
			parsedItem("grainger", "PVC pipe 10 ft", "12.40"),
		},
		Sources: 1,
	}}
	svc := newIngestService(t, fetcher, store)

	if _, err := svc.Ingest(context.Background(), IngestInput{Query: "ladder"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("upserts = %d, want 2", len(store.upserts))
	}
	if store.upserts[0].Kind != enums.ItemKindEquipment {
		t.Errorf("ladder kind = %s, want equipment", store.upserts[0].Kind)
	}
	if store.upserts[1].Kind != enums.ItemKindMaterial {
		t.Errorf("pipe kind = %s, want material", store.upserts[1].Kind)
	}
}

func TestIngestContinuesPastPersistFailures(t *testing.T) {
	store := newStubCatalog()
	store.entryErr["Broken item"] = errors.New("column too wide")

	fetcher := &stubFetcher{result: Result{
		Items: []ParsedItem{
			parsedItem("grainger", "Broken item", "5.00"),
			parsedItem("grainger", "Good item", "7.00"),
		},
		Sources: 1,
	}}
	svc := newIngestService(t, fetcher, store)

	outcome, err := svc.Ingest(context.Background(), IngestInput{Query: "item"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome.Failures == nil {
		t.Fatal("expected the persist failure to surface in the outcome")
	}
	if !strings.Contains(outcome.Failures.Error(), "Broken item") {
		t.Errorf("failure should name the item: %v", outcome.Failures)
	}
	if len(store.entries) != 1 || store.entries[0].Title != "Good item" {
		t.Errorf("entries = %+v, want only the good item", store.entries)
	}
	if len(store.widened) != 1 {
		t.Errorf("widen calls = %d, want 1 (skipped for the failed entry)", len(store.widened))
	}
}

func TestIngestSurfacesVendorFailuresAlongsideResults(t *testing.T) {
	store := newStubCatalog()
	fetcher := &stubFetcher{result: Result{
		Items:    []ParsedItem{parsedItem("grainger", "Good item", "7.00")},
		Sources:  1,
		Failures: []error{errors.New("zoro: unexpected status 502")},
	}}
	svc := newIngestService(t, fetcher, store)

	outcome, err := svc.Ingest(context.Background(), IngestInput{Query: "item"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome.Sources != 1 || outcome.ItemsAdded != 1 {
		t.Errorf("outcome = %+v", outcome)
	}
	if got := multierr.Errors(outcome.Failures); len(got) != 1 {
		t.Errorf("failures = %v, want the vendor failure carried through", got)
	}
}

func TestIngestFailsWhenEveryVendorFails(t *testing.T) {
	store := newStubCatalog()
	fetcher := &stubFetcher{result: Result{
		Failures: []error{
			errors.New("grainger: unexpected status 502"),
			errors.New("zoro: search request: timeout"),
		},
	}}
	svc := newIngestService(t, fetcher, store)

	_, err := svc.Ingest(context.Background(), IngestInput{Query: "item"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("err = %v, want CodeDependency so the pass can be retried", err)
	}
	if !pkgerrors.MetadataFor(pkgerrors.As(err).Code()).Retryable {
		t.Error("total vendor failure should be retryable")
	}
	if len(store.upserts) != 0 {
		t.Errorf("nothing should be persisted, got %d upserts", len(store.upserts))
	}
}

func TestIngestRejectsBlankQuery(t *testing.T) {
	svc := newIngestService(t, &stubFetcher{}, newStubCatalog())

	_, err := svc.Ingest(context.Background(), IngestInput{Query: "   "})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("err = %v, want CodeValidation", err)
	}
}

func TestIngestPropagatesSearchError(t *testing.T) {
	boom := errors.New("context deadline exceeded")
	svc := newIngestService(t, &stubFetcher{err: boom}, newStubCatalog())

	_, err := svc.Ingest(context.Background(), IngestInput{Query: "pipe"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the search error", err)
	}
}
