package resolver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
)

type stubCatalogRepo struct {
	exact           *models.CanonicalItem
	exactErr        error
	synonym         *models.CanonicalItem
	weight          float64
	synonymErr      error
	candidates      []models.CanonicalItem
	candidatesErr   error
	bumped          []uuid.UUID
	bumpErr         error
	lastNormalized  string
	lastServiceLine string
	exactCalls      int
}

func (s *stubCatalogRepo) FindExact(ctx context.Context, normalizedName, serviceLine string) (*models.CanonicalItem, error) {
	s.exactCalls++
	s.lastNormalized = normalizedName
	s.lastServiceLine = serviceLine
	return s.exact, s.exactErr
}

func (s *stubCatalogRepo) FindSynonym(ctx context.Context, normalizedSynonym, serviceLine string) (*models.CanonicalItem, float64, error) {
	return s.synonym, s.weight, s.synonymErr
}

func (s *stubCatalogRepo) ListActiveCandidates(ctx context.Context, serviceLine string) ([]models.CanonicalItem, error) {
	return s.candidates, s.candidatesErr
}

func (s *stubCatalogRepo) BumpPopularity(ctx context.Context, id uuid.UUID) error {
	if s.bumpErr != nil {
		return s.bumpErr
	}
	s.bumped = append(s.bumped, id)
	return nil
}

func newResolverForTests(repo *stubCatalogRepo) Service {
	svc, err := NewService(repo)
	if err != nil {
		panic(err)
	}
	return svc
}

func TestResolveExactWins(t *testing.T) {
	item := &models.CanonicalItem{ID: uuid.New(), CanonicalName: "Copper Pipe", NormalizedName: "copper pipe"}
	repo := &stubCatalogRepo{exact: item}
	svc := newResolverForTests(repo)

	match, err := svc.Resolve(context.Background(), Query{Name: "  Copper   PIPE ", ServiceLine: "plumbing"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Kind != enums.MatchKindExact {
		t.Fatalf("expected exact match, got %s", match.Kind)
	}
	if match.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %f", match.Confidence)
	}
	if match.Item == nil || match.Item.ID != item.ID {
		t.Fatalf("expected matched item %s", item.ID)
	}
	if repo.lastNormalized != "copper pipe" {
		t.Fatalf("expected normalized lookup, got %q", repo.lastNormalized)
	}
	if repo.lastServiceLine != "plumbing" {
		t.Fatalf("expected service line scope, got %q", repo.lastServiceLine)
	}
	if len(repo.bumped) != 1 || repo.bumped[0] != item.ID {
		t.Fatalf("expected one popularity bump for %s, got %v", item.ID, repo.bumped)
	}
}

func TestResolveSynonymCarriesWeight(t *testing.T) {
	item := &models.CanonicalItem{ID: uuid.New(), CanonicalName: "Copper Pipe", NormalizedName: "copper pipe"}
	repo := &stubCatalogRepo{synonym: item, weight: 0.95}
	svc := newResolverForTests(repo)

	match, err := svc.Resolve(context.Background(), Query{Name: "cu pipe", ServiceLine: "plumbing"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Kind != enums.MatchKindSynonym {
		t.Fatalf("expected synonym match, got %s", match.Kind)
	}
	if match.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %f", match.Confidence)
	}
	if len(repo.bumped) != 1 {
		t.Fatalf("expected popularity bump, got %v", repo.bumped)
	}
}

func TestResolveFuzzyAboveThreshold(t *testing.T) {
	item := models.CanonicalItem{ID: uuid.New(), CanonicalName: "Copper Pipe", NormalizedName: "copper pipe"}
	repo := &stubCatalogRepo{candidates: []models.CanonicalItem{item}}
	svc := newResolverForTests(repo)

	match, err := svc.Resolve(context.Background(), Query{Name: "coper pipe", ServiceLine: "plumbing"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Kind != enums.MatchKindFuzzy {
		t.Fatalf("expected fuzzy match, got %s", match.Kind)
	}
	want := 1.0 - 1.0/21.0
	if math.Abs(match.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", want, match.Confidence)
	}
	if len(repo.bumped) != 1 || repo.bumped[0] != item.ID {
		t.Fatalf("expected popularity bump for %s, got %v", item.ID, repo.bumped)
	}
}

func TestResolveNoneBelowThreshold(t *testing.T) {
	repo := &stubCatalogRepo{candidates: []models.CanonicalItem{
		{ID: uuid.New(), CanonicalName: "Circuit Breaker", NormalizedName: "circuit breaker"},
	}}
	svc := newResolverForTests(repo)

	match, err := svc.Resolve(context.Background(), Query{Name: "copper pipe", ServiceLine: "electrical"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Kind != enums.MatchKindNone {
		t.Fatalf("expected no match, got %s", match.Kind)
	}
	if match.Item != nil {
		t.Fatalf("expected nil item on miss")
	}
	if len(repo.bumped) != 0 {
		t.Fatalf("expected no popularity bump on miss, got %v", repo.bumped)
	}
}

func TestResolveBreaksTiesByPopularity(t *testing.T) {
	low := models.CanonicalItem{ID: uuid.New(), CanonicalName: "PVC Pipe A", NormalizedName: "pvc pipe a", Popularity: 3}
	high := models.CanonicalItem{ID: uuid.New(), CanonicalName: "PVC Pipe B", NormalizedName: "pvc pipe b", Popularity: 9}
	repo := &stubCatalogRepo{candidates: []models.CanonicalItem{low, high}}
	svc := newResolverForTests(repo)

	match, err := svc.Resolve(context.Background(), Query{Name: "pvc pipe", ServiceLine: "plumbing"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Kind != enums.MatchKindFuzzy {
		t.Fatalf("expected fuzzy match, got %s", match.Kind)
	}
	if match.Item.ID != high.ID {
		t.Fatalf("expected higher-popularity item %s, got %s", high.ID, match.Item.ID)
	}
}

func TestResolveBreaksEqualPopularityByName(t *testing.T) {
	second := models.CanonicalItem{ID: uuid.New(), CanonicalName: "PVC Pipe B", NormalizedName: "pvc pipe b", Popularity: 5}
	first := models.CanonicalItem{ID: uuid.New(), CanonicalName: "PVC Pipe A", NormalizedName: "pvc pipe a", Popularity: 5}
	repo := &stubCatalogRepo{candidates: []models.CanonicalItem{second, first}}
	svc := newResolverForTests(repo)

	match, err := svc.Resolve(context.Background(), Query{Name: "pvc pipe", ServiceLine: "plumbing"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Item.ID != first.ID {
		t.Fatalf("expected lexicographically first item, got %s", match.Item.CanonicalName)
	}
}

func TestResolveBlankNameIsNone(t *testing.T) {
	repo := &stubCatalogRepo{}
	svc := newResolverForTests(repo)

	match, err := svc.Resolve(context.Background(), Query{Name: "   "})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Kind != enums.MatchKindNone {
		t.Fatalf("expected no match, got %s", match.Kind)
	}
	if repo.exactCalls != 0 {
		t.Fatalf("expected no catalog lookups for blank name")
	}
}

func TestResolveBumpFailurePropagates(t *testing.T) {
	item := &models.CanonicalItem{ID: uuid.New(), NormalizedName: "copper pipe"}
	repo := &stubCatalogRepo{exact: item, bumpErr: errors.New("db down")}
	svc := newResolverForTests(repo)

	if _, err := svc.Resolve(context.Background(), Query{Name: "copper pipe"}); err == nil {
		t.Fatal("expected bump error to propagate")
	}
}
