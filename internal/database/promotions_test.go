package database

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPromotion(facilityID int64, code, discountType string, value float64) *models.Promotion {
	now := time.Now()
	return &models.Promotion{
		FacilityID:    facilityID,
		Code:          code,
		Title:         "Test promo " + code,
		DiscountType:  discountType,
		DiscountValue: value,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestCreatePromotion_Validation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		promo := testPromotion(1, "SPRING10", models.DiscountPercentage, 10)
		require.NoError(t, db.CreatePromotion(ctx, promo))
		assert.NotZero(t, promo.ID)
	})

	t.Run("percentage over 100 rejected", func(t *testing.T) {
		promo := testPromotion(1, "BROKEN", models.DiscountPercentage, 150)
		assert.Error(t, db.CreatePromotion(ctx, promo))
	})

	t.Run("negative fixed rejected", func(t *testing.T) {
		promo := testPromotion(1, "NEG", models.DiscountFixed, -5)
		assert.Error(t, db.CreatePromotion(ctx, promo))
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		promo := testPromotion(1, "ODD", "bogus", 5)
		assert.Error(t, db.CreatePromotion(ctx, promo))
	})
}

func TestGetActivePromotionsForFacility(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	// Two live promotions for facility 1.
	first := testPromotion(1, "FIRST", models.DiscountPercentage, 10)
	second := testPromotion(1, "SECOND", models.DiscountFixed, 200)
	require.NoError(t, db.CreatePromotion(ctx, first))
	require.NoError(t, db.CreatePromotion(ctx, second))

	// Expired window.
	expired := testPromotion(1, "EXPIRED", models.DiscountPercentage, 50)
	expired.ValidFrom = now.Add(-48 * time.Hour)
	expired.ValidUntil = now.Add(-24 * time.Hour)
	require.NoError(t, db.CreatePromotion(ctx, expired))

	// Other facility.
	other := testPromotion(2, "OTHER", models.DiscountPercentage, 10)
	require.NoError(t, db.CreatePromotion(ctx, other))

	// Deactivated.
	inactive := testPromotion(1, "INACTIVE", models.DiscountPercentage, 10)
	require.NoError(t, db.CreatePromotion(ctx, inactive))
	require.NoError(t, db.DeactivatePromotion(ctx, inactive.ID))

	promos, err := db.GetActivePromotionsForFacility(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, promos, 2)

	// Stable ID order so downstream tie-breaking is deterministic.
	assert.Equal(t, first.ID, promos[0].ID)
	assert.Equal(t, second.ID, promos[1].ID)
}

func TestGetPromotion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	promo := testPromotion(1, "LOOKUP", models.DiscountFixed, 100)
	require.NoError(t, db.CreatePromotion(ctx, promo))

	got, err := db.GetPromotion(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, "LOOKUP", got.Code)
	assert.Equal(t, models.DiscountFixed, got.DiscountType)

	_, err = db.GetPromotion(ctx, 9999)
	assert.Error(t, err)
}
