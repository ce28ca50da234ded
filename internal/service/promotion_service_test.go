package service

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPromotionService(t *testing.T) (*PromotionService, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.SetFacilities([]*models.Facility{
		{ID: 1, Name: "Tennis Hall", CourtCount: 4, IsActive: true},
	})

	return NewPromotionService(db, &logger), db
}

func createPromotion(t *testing.T, db *database.DB, facilityID int64, code, discountType string, value float64) *models.Promotion {
	t.Helper()
	now := time.Now()
	p := &models.Promotion{
		FacilityID:    facilityID,
		Code:          code,
		DiscountType:  discountType,
		DiscountValue: value,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
		IsActive:      true,
	}
	require.NoError(t, db.CreatePromotion(context.Background(), p))
	return p
}

func TestCalculateFinalPrice(t *testing.T) {
	svc, _ := setupPromotionService(t)

	tests := []struct {
		name     string
		base     float64
		promo    *models.Promotion
		expected float64
	}{
		{"nil promo", 100, nil, 100},
		{"percentage", 200, &models.Promotion{DiscountType: models.DiscountPercentage, DiscountValue: 25}, 150},
		{"percentage zero", 200, &models.Promotion{DiscountType: models.DiscountPercentage, DiscountValue: 0}, 200},
		{"percentage full", 200, &models.Promotion{DiscountType: models.DiscountPercentage, DiscountValue: 100}, 0},
		{"fixed", 200, &models.Promotion{DiscountType: models.DiscountFixed, DiscountValue: 50}, 150},
		{"fixed floors at zero", 100, &models.Promotion{DiscountType: models.DiscountFixed, DiscountValue: 150}, 0},
		{"unknown type is a no-op", 100, &models.Promotion{DiscountType: "bogus", DiscountValue: 50}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, svc.CalculateFinalPrice(tt.base, tt.promo), 1e-9)
		})
	}
}

func TestSelectBestPromotion(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("no promotions", func(t *testing.T) {
		svc, _ := setupPromotionService(t)
		best, err := svc.SelectBestPromotion(ctx, 1, 100, now)
		require.NoError(t, err)
		assert.Nil(t, best)
	})

	t.Run("lowest final price wins", func(t *testing.T) {
		svc, db := setupPromotionService(t)
		createPromotion(t, db, 1, "TEN", models.DiscountPercentage, 10)    // 900
		winner := createPromotion(t, db, 1, "BIG", models.DiscountFixed, 300) // 700
		createPromotion(t, db, 1, "SMALL", models.DiscountFixed, 50)       // 950

		best, err := svc.SelectBestPromotion(ctx, 1, 1000, now)
		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Equal(t, winner.ID, best.PromotionID)
		assert.InDelta(t, 700, best.FinalPrice, 1e-9)
		assert.InDelta(t, 300, best.DiscountAmount, 1e-9)
	})

	t.Run("percentage beats fixed on equal final price", func(t *testing.T) {
		svc, db := setupPromotionService(t)
		// Both land at 900 for a base of 1000.
		fixed := createPromotion(t, db, 1, "FIX100", models.DiscountFixed, 100)
		pct := createPromotion(t, db, 1, "PCT10", models.DiscountPercentage, 10)
		_ = fixed

		best, err := svc.SelectBestPromotion(ctx, 1, 1000, now)
		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Equal(t, pct.ID, best.PromotionID)
		assert.Equal(t, models.DiscountPercentage, best.DiscountType)
	})

	t.Run("larger discount value breaks same-type ties", func(t *testing.T) {
		svc, db := setupPromotionService(t)
		// Base price 0: every percentage promo yields 0.
		createPromotion(t, db, 1, "PCT10", models.DiscountPercentage, 10)
		bigger := createPromotion(t, db, 1, "PCT20", models.DiscountPercentage, 20)

		best, err := svc.SelectBestPromotion(ctx, 1, 0, now)
		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Equal(t, bigger.ID, best.PromotionID)
	})

	t.Run("lowest ID is the final tie-break", func(t *testing.T) {
		svc, db := setupPromotionService(t)
		first := createPromotion(t, db, 1, "TWIN_A", models.DiscountPercentage, 15)
		createPromotion(t, db, 1, "TWIN_B", models.DiscountPercentage, 15)

		best, err := svc.SelectBestPromotion(ctx, 1, 1000, now)
		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Equal(t, first.ID, best.PromotionID)
	})

	t.Run("expired and inactive are ignored", func(t *testing.T) {
		svc, db := setupPromotionService(t)

		expired := createPromotion(t, db, 1, "OLD", models.DiscountPercentage, 90)
		_, err := db.ExecContext(ctx,
			`UPDATE promotions SET valid_until = ? WHERE id = ?`, now.Add(-time.Hour), expired.ID)
		require.NoError(t, err)

		inactive := createPromotion(t, db, 1, "DEAD", models.DiscountPercentage, 90)
		require.NoError(t, db.DeactivatePromotion(ctx, inactive.ID))

		live := createPromotion(t, db, 1, "LIVE", models.DiscountPercentage, 5)

		best, err := svc.SelectBestPromotion(ctx, 1, 1000, now)
		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Equal(t, live.ID, best.PromotionID)
	})
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("negative base price", func(t *testing.T) {
		svc, _ := setupPromotionService(t)
		_, err := svc.Quote(ctx, 1, -10, now)
		assert.ErrorIs(t, err, ErrNegativeBasePrice)
	})

	t.Run("unknown facility", func(t *testing.T) {
		svc, _ := setupPromotionService(t)
		_, err := svc.Quote(ctx, 42, 100, now)
		assert.ErrorIs(t, err, ErrFacilityNotFound)
	})

	t.Run("no promotion keeps base price", func(t *testing.T) {
		svc, _ := setupPromotionService(t)
		quote, err := svc.Quote(ctx, 1, 100, now)
		require.NoError(t, err)
		assert.Zero(t, quote.PromotionID)
		assert.InDelta(t, 100, quote.FinalPrice, 1e-9)
	})

	t.Run("best promotion applied", func(t *testing.T) {
		svc, db := setupPromotionService(t)
		promo := createPromotion(t, db, 1, "SPRING", models.DiscountPercentage, 20)

		quote, err := svc.Quote(ctx, 1, 500, now)
		require.NoError(t, err)
		assert.Equal(t, promo.ID, quote.PromotionID)
		assert.Equal(t, "SPRING", quote.Code)
		assert.InDelta(t, 400, quote.FinalPrice, 1e-9)
	})
}
