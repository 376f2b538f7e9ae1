package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/veriline/veriline-backend/internal/catalog"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
)

type catalogRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CanonicalItem, error)
	VendorBand(ctx context.Context, canonicalItemID uuid.UUID) (*catalog.Band, error)
}

// Result is one price band check. Validated=false routes the item to
// human explanation.
type Result struct {
	Outcome   enums.PriceOutcome
	Validated bool
	Note      string
}

// Service checks a matched line item's unit price against the expected band.
type Service interface {
	Check(ctx context.Context, item *models.LineItem) (Result, error)
}

type service struct {
	catalogRepo catalogRepository
	tolerance   decimal.Decimal
}

// NewService builds the price validator. toleranceFactor is the multiple of
// the band maximum above which a costlier price becomes a policy violation.
func NewService(catalogRepo catalogRepository, toleranceFactor string) (Service, error) {
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	tolerance, err := decimal.NewFromString(strings.TrimSpace(toleranceFactor))
	if err != nil {
		return nil, fmt.Errorf("parsing tolerance factor %q: %w", toleranceFactor, err)
	}
	if tolerance.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tolerance factor must be at least 1, got %s", tolerance)
	}
	return &service{catalogRepo: catalogRepo, tolerance: tolerance}, nil
}

// Check compares the item's unit price to the canonical band, falling back
// to the aggregated vendor band when the canonical item carries none.
// Cheaper-than-band prices validate with an informational note; prices above
// the band validate only within the tolerance multiple.
func (s *service) Check(ctx context.Context, item *models.LineItem) (Result, error) {
	if item == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "line item is required")
	}
	if item.CanonicalItemID == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "line item has no canonical match")
	}
	if item.UnitPrice == nil {
		return Result{
			Outcome:   enums.PriceOutcomeNoBand,
			Validated: false,
			Note:      "No unit price submitted",
		}, nil
	}

	band, err := s.lookupBand(ctx, *item.CanonicalItemID)
	if err != nil {
		return Result{}, err
	}
	if band == nil {
		return Result{
			Outcome:   enums.PriceOutcomeNoBand,
			Validated: false,
			Note:      "No price band available for the matched item",
		}, nil
	}

	price := *item.UnitPrice
	switch {
	case price.LessThan(band.Min):
		return Result{
			Outcome:   enums.PriceOutcomeCheaper,
			Validated: true,
			Note:      fmt.Sprintf("Unit price %s is below the expected band %s to %s", price, band.Min, band.Max),
		}, nil
	case price.GreaterThan(band.Max):
		limit := band.Max.Mul(s.tolerance)
		if price.LessThanOrEqual(limit) {
			return Result{
				Outcome:   enums.PriceOutcomeCostlier,
				Validated: true,
				Note:      fmt.Sprintf("Unit price %s exceeds the band maximum %s but is within tolerance", price, band.Max),
			}, nil
		}
		return Result{
			Outcome:   enums.PriceOutcomeCostlier,
			Validated: false,
			Note:      fmt.Sprintf("Unit price %s exceeds the band maximum %s beyond the %sx tolerance", price, band.Max, s.tolerance),
		}, nil
	default:
		return Result{Outcome: enums.PriceOutcomeWithinRange, Validated: true}, nil
	}
}

// lookupBand prefers the canonical item's own band and falls back to the
// min/max aggregate of vendor observations.
func (s *service) lookupBand(ctx context.Context, canonicalItemID uuid.UUID) (*catalog.Band, error) {
	item, err := s.catalogRepo.FindByID(ctx, canonicalItemID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if item != nil && item.BandMin != nil && item.BandMax != nil {
		return &catalog.Band{Min: *item.BandMin, Max: *item.BandMax}, nil
	}
	return s.catalogRepo.VendorBand(ctx, canonicalItemID)
}
