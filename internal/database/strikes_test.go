package database

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStrike_OnePerBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	strike := &models.Strike{BookingID: 100, UserID: 1, ReporterID: 50, Reason: "no show"}
	require.NoError(t, db.CreateStrike(ctx, strike))
	require.NotZero(t, strike.ID)

	// Second report for the same booking, even from another reporter.
	dup := &models.Strike{BookingID: 100, UserID: 1, ReporterID: 51, Reason: "no show again"}
	err := db.CreateStrike(ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyReported)

	count, err := db.CountActiveStrikes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetStrikeByBookingID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	got, err := db.GetStrikeByBookingID(ctx, 777)
	require.NoError(t, err)
	assert.Nil(t, got)

	strike := &models.Strike{BookingID: 777, UserID: 2, ReporterID: 50}
	require.NoError(t, db.CreateStrike(ctx, strike))

	got, err = db.GetStrikeByBookingID(ctx, 777)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.UserID)
}

func TestExpireStrikesBefore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, db.CreateStrike(ctx, &models.Strike{BookingID: i, UserID: i, ReporterID: 50}))
	}

	t.Run("nothing older than cutoff", func(t *testing.T) {
		count, userIDs, err := db.ExpireStrikesBefore(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.Empty(t, userIDs)
	})

	t.Run("expires and reports affected users", func(t *testing.T) {
		count, userIDs, err := db.ExpireStrikesBefore(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.ElementsMatch(t, []int64{1, 2, 3}, userIDs)

		for i := int64(1); i <= 3; i++ {
			active, err := db.CountActiveStrikes(ctx, i)
			require.NoError(t, err)
			assert.Equal(t, 0, active)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		count, userIDs, err := db.ExpireStrikesBefore(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.Empty(t, userIDs)
	})

	t.Run("expired strikes are kept for history", func(t *testing.T) {
		strikes, err := db.GetUserStrikes(ctx, 1)
		require.NoError(t, err)
		require.Len(t, strikes, 1)
		assert.True(t, strikes[0].Expired)
		assert.NotNil(t, strikes[0].ExpiredAt)
	})
}

func TestGetAllStrikes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	require.NoError(t, db.CreateStrike(ctx, &models.Strike{BookingID: 1, UserID: 1, ReporterID: 50}))
	require.NoError(t, db.CreateStrike(ctx, &models.Strike{BookingID: 2, UserID: 2, ReporterID: 50}))

	all, err := db.GetAllStrikes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
