package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// PromotionService selects the best applicable discount for a booking
// and computes final prices.
type PromotionService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewPromotionService(repo domain.Repository, logger *zerolog.Logger) *PromotionService {
	return &PromotionService{repo: repo, logger: logger}
}

// CalculateFinalPrice applies a single promotion to a base price.
// Percentage discounts are applied as-is; values outside [0, 100] are
// rejected when the promotion is written, not here. Fixed discounts
// never drive the price below zero.
func (s *PromotionService) CalculateFinalPrice(basePrice float64, promo *models.Promotion) float64 {
	if promo == nil {
		return basePrice
	}

	switch promo.DiscountType {
	case models.DiscountPercentage:
		return basePrice * (1 - promo.DiscountValue/100)
	case models.DiscountFixed:
		final := basePrice - promo.DiscountValue
		if final < 0 {
			return 0
		}
		return final
	default:
		return basePrice
	}
}

// SelectBestPromotion picks the single winning promotion for a facility
// at the given time. Candidates are ranked by lowest final price, then
// percentage over fixed, then larger discount value, then lowest
// promotion ID, so the same inputs always produce the same winner.
// Returns nil when no promotion applies.
func (s *PromotionService) SelectBestPromotion(ctx context.Context, facilityID int64, basePrice float64, at time.Time) (*models.PromotionEligibility, error) {
	promos, err := s.repo.GetActivePromotionsForFacility(ctx, facilityID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to load promotions: %w", err)
	}

	candidates := promos[:0]
	for _, p := range promos {
		if p.ValidAt(at) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	type ranked struct {
		promo *models.Promotion
		final float64
	}
	rankedList := make([]ranked, 0, len(candidates))
	for _, p := range candidates {
		rankedList = append(rankedList, ranked{promo: p, final: s.CalculateFinalPrice(basePrice, p)})
	}

	sort.SliceStable(rankedList, func(i, j int) bool {
		a, b := rankedList[i], rankedList[j]
		if a.final != b.final {
			return a.final < b.final
		}
		if a.promo.DiscountType != b.promo.DiscountType {
			return a.promo.DiscountType == models.DiscountPercentage
		}
		if a.promo.DiscountValue != b.promo.DiscountValue {
			return a.promo.DiscountValue > b.promo.DiscountValue
		}
		return a.promo.ID < b.promo.ID
	})

	best := rankedList[0]
	metrics.IncPromotionApplied(best.promo.DiscountType)

	return &models.PromotionEligibility{
		PromotionID:    best.promo.ID,
		Code:           best.promo.Code,
		DiscountType:   best.promo.DiscountType,
		DiscountValue:  best.promo.DiscountValue,
		DiscountAmount: basePrice - best.final,
		FinalPrice:     best.final,
	}, nil
}

// Quote prices a prospective booking. When no promotion applies the
// quote carries the base price and no promotion ID.
func (s *PromotionService) Quote(ctx context.Context, facilityID int64, basePrice float64, at time.Time) (*models.PromotionEligibility, error) {
	if basePrice < 0 {
		return nil, ErrNegativeBasePrice
	}

	if _, err := s.repo.GetFacilityByID(ctx, facilityID); err != nil {
		return nil, ErrFacilityNotFound
	}

	best, err := s.SelectBestPromotion(ctx, facilityID, basePrice, at)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return &models.PromotionEligibility{FinalPrice: basePrice}, nil
	}
	return best, nil
}
