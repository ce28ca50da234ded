package service

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/models"
	"courtbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBookingService(t *testing.T) (*BookingService, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.SetFacilities([]*models.Facility{
		{ID: 1, Name: "Tennis Hall", CourtCount: 1, IsActive: true},
	})

	bus := events.NewEventBus()
	trust := NewTrustService(db, nil, bus, nil, config.TrustConfig{}, &logger)
	promos := NewPromotionService(db, &logger)
	return NewBookingService(db, trust, promos, bus, &logger), db
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	newBooking := func(userID int64, price float64) *models.Booking {
		return &models.Booking{
			UserID: userID, UserName: "Test User",
			FacilityID: 1,
			StartTime:  now.Add(24 * time.Hour),
			EndTime:    now.Add(25 * time.Hour),
			Price:      price,
		}
	}

	t.Run("rejects inverted time range", func(t *testing.T) {
		svc, db := setupBookingService(t)
		user := createTestUser(t, db, "r1@example.com", true, models.TrustLevelMember, models.WeeklyLimitMember, 0, nil)

		b := newBooking(user.ID, 500)
		b.EndTime = b.StartTime.Add(-time.Hour)
		assert.Error(t, svc.CreateBooking(ctx, b))
	})

	t.Run("blocked by trust gate", func(t *testing.T) {
		svc, db := setupBookingService(t)
		user := createTestUser(t, db, "r2@example.com", false, models.TrustLevelUnverified, models.WeeklyLimitUnverified, 0, nil)

		err := svc.CreateBooking(ctx, newBooking(user.ID, 500))
		var notEligible *ErrNotEligible
		require.ErrorAs(t, err, &notEligible)
		assert.Equal(t, models.ReasonUnverified, notEligible.Result.ReasonCode)
	})

	t.Run("applies best promotion", func(t *testing.T) {
		svc, db := setupBookingService(t)
		user := createTestUser(t, db, "r3@example.com", true, models.TrustLevelRegular, models.WeeklyLimitRegular, 6, nil)

		promo := &models.Promotion{
			FacilityID: 1, Code: "OFF20", DiscountType: models.DiscountPercentage, DiscountValue: 20,
			ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(48 * time.Hour), IsActive: true,
		}
		require.NoError(t, db.CreatePromotion(ctx, promo))

		b := newBooking(user.ID, 500)
		require.NoError(t, svc.CreateBooking(ctx, b))

		assert.Equal(t, promo.ID, b.PromotionID)
		assert.InDelta(t, 400, b.Price, 1e-9)
		assert.Equal(t, models.StatusPending, b.Status)
		assert.Equal(t, "Tennis Hall", b.FacilityName)
	})

	t.Run("full facility", func(t *testing.T) {
		svc, db := setupBookingService(t)
		first := createTestUser(t, db, "r4@example.com", true, models.TrustLevelMember, models.WeeklyLimitMember, 0, nil)
		second := createTestUser(t, db, "r5@example.com", true, models.TrustLevelMember, models.WeeklyLimitMember, 0, nil)

		require.NoError(t, svc.CreateBooking(ctx, newBooking(first.ID, 500)))

		err := svc.CreateBooking(ctx, newBooking(second.ID, 500))
		assert.ErrorIs(t, err, database.ErrNotAvailable)
	})

	t.Run("unknown facility", func(t *testing.T) {
		svc, db := setupBookingService(t)
		user := createTestUser(t, db, "r6@example.com", true, models.TrustLevelMember, models.WeeklyLimitMember, 0, nil)

		b := newBooking(user.ID, 500)
		b.FacilityID = 77
		assert.ErrorIs(t, svc.CreateBooking(ctx, b), ErrFacilityNotFound)
	})
}

// The cached allow from one eligibility check must not let a user book
// past the weekly quota within the cache TTL.
func TestCreateBookingWeeklyLimitWithCache(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.SetFacilities([]*models.Facility{
		{ID: 1, Name: "Tennis Hall", CourtCount: 4, IsActive: true},
	})

	cache := repository.NewMemoryCacheRepository()
	bus := events.NewEventBus()
	trust := NewTrustService(db, cache, bus, nil, config.TrustConfig{}, &logger)
	promos := NewPromotionService(db, &logger)
	svc := NewBookingService(db, trust, promos, bus, &logger)

	user := createTestUser(t, db, "cached@example.com", true, models.TrustLevelMember, models.WeeklyLimitMember, 0, nil)

	now := time.Now()
	created := 0
	var lastErr error
	for i := 0; i < models.WeeklyLimitMember+2; i++ {
		b := &models.Booking{
			UserID: user.ID, UserName: "Test User",
			FacilityID: 1,
			StartTime:  now.Add(time.Duration(24*(i+1)) * time.Hour),
			EndTime:    now.Add(time.Duration(24*(i+1)+1) * time.Hour),
			Price:      500,
		}
		if err := svc.CreateBooking(ctx, b); err != nil {
			lastErr = err
			break
		}
		created++
	}

	assert.Equal(t, models.WeeklyLimitMember, created)

	var notEligible *ErrNotEligible
	require.ErrorAs(t, lastErr, &notEligible)
	assert.Equal(t, models.ReasonWeeklyLimit, notEligible.Result.ReasonCode)
	assert.Equal(t, models.WeeklyLimitMember, notEligible.Result.WeeklyCount)
}
