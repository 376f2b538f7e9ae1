package resolver

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
)

// fuzzyThreshold is the minimum similarity a fuzzy candidate must reach to
// count as a match.
const fuzzyThreshold = 0.86

type catalogRepository interface {
	FindExact(ctx context.Context, normalizedName, serviceLine string) (*models.CanonicalItem, error)
	FindSynonym(ctx context.Context, normalizedSynonym, serviceLine string) (*models.CanonicalItem, float64, error)
	ListActiveCandidates(ctx context.Context, serviceLine string) ([]models.CanonicalItem, error)
	BumpPopularity(ctx context.Context, id uuid.UUID) error
}

// Query is one raw name to resolve, optionally scoped to a service line.
// An empty ServiceLine searches the whole catalog.
type Query struct {
	Name        string
	ServiceLine string
}

// Match is the resolver outcome. Item is nil exactly when Kind is none.
type Match struct {
	Kind       enums.MatchKind
	Confidence float64
	Item       *models.CanonicalItem
}

// Service resolves raw line-item names against the canonical catalog.
type Service interface {
	Resolve(ctx context.Context, query Query) (Match, error)
}

type service struct {
	catalogRepo catalogRepository
}

// NewService builds a resolver backed by the catalog repository.
func NewService(catalogRepo catalogRepository) (Service, error) {
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{catalogRepo: catalogRepo}, nil
}

// Resolve tries exact, then synonym, then fuzzy lookup and reports the first
// tier that produces a match. Any match bumps the item's popularity.
func (s *service) Resolve(ctx context.Context, query Query) (Match, error) {
	normalized := catalog.Normalize(query.Name)
	if normalized == "" {
		return Match{Kind: enums.MatchKindNone}, nil
	}

	item, err := s.catalogRepo.FindExact(ctx, normalized, query.ServiceLine)
	if err != nil {
		return Match{}, err
	}
	if item != nil {
		return s.record(ctx, enums.MatchKindExact, 1.0, item)
	}

	item, weight, err := s.catalogRepo.FindSynonym(ctx, normalized, query.ServiceLine)
	if err != nil {
		return Match{}, err
	}
	if item != nil {
		return s.record(ctx, enums.MatchKindSynonym, weight, item)
	}

	candidates, err := s.catalogRepo.ListActiveCandidates(ctx, query.ServiceLine)
	if err != nil {
		return Match{}, err
	}
	if best, similarity := bestFuzzy(normalized, candidates); best != nil {
		return s.record(ctx, enums.MatchKindFuzzy, similarity, best)
	}

	return Match{Kind: enums.MatchKindNone}, nil
}

func (s *service) record(ctx context.Context, kind enums.MatchKind, confidence float64, item *models.CanonicalItem) (Match, error) {
	if err := s.catalogRepo.BumpPopularity(ctx, item.ID); err != nil {
		return Match{}, err
	}
	return Match{Kind: kind, Confidence: confidence, Item: item}, nil
}

// bestFuzzy scans candidates for the highest similarity at or above the
// threshold. Ties resolve by popularity, then canonical name, so repeated
// resolves of the same query pick the same item.
func bestFuzzy(normalized string, candidates []models.CanonicalItem) (*models.CanonicalItem, float64) {
	var (
		best    *models.CanonicalItem
		bestSim float64
	)
	for i := range candidates {
		candidate := &candidates[i]
		similarity := catalog.Similarity(normalized, candidate.NormalizedName)
		if similarity < fuzzyThreshold {
			continue
		}
		if best == nil || closerMatch(similarity, candidate, bestSim, best) {
			best = candidate
			bestSim = similarity
		}
	}
	return best, bestSim
}

func closerMatch(similarity float64, candidate *models.CanonicalItem, bestSim float64, best *models.CanonicalItem) bool {
	if similarity != bestSim {
		return similarity > bestSim
	}
	if candidate.Popularity != best.Popularity {
		return candidate.Popularity > best.Popularity
	}
	return candidate.CanonicalName < best.CanonicalName
}
