package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	user := &models.User{
		Email:              "alice@example.com",
		Name:               "Alice",
		Phone:              "+1234567",
		EmailVerified:      true,
		TrustLevel:         models.TrustLevelMember,
		WeeklyBookingLimit: models.WeeklyLimitMember,
	}
	require.NoError(t, db.CreateUser(ctx, user))
	require.NotZero(t, user.ID)

	byID, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.Equal(t, models.TrustLevelMember, byID.TrustLevel)

	byEmail, err := db.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = db.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	first := &models.User{Email: "bob@example.com", Name: "Bob"}
	require.NoError(t, db.CreateUser(ctx, first))

	second := &models.User{Email: "bob@example.com", Name: "Bobby"}
	assert.Error(t, db.CreateUser(ctx, second))
}

func TestUpdateUserTrust(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	user := &models.User{
		Email:              "carol@example.com",
		Name:               "Carol",
		EmailVerified:      true,
		TrustLevel:         models.TrustLevelRegular,
		WeeklyBookingLimit: models.WeeklyLimitRegular,
		SuccessfulBookings: 7,
	}
	require.NoError(t, db.CreateUser(ctx, user))

	banUntil := time.Now().Add(models.BanDuration)
	err := db.UpdateUserTrust(ctx, user.ID, models.TrustLevelMember, models.WeeklyLimitMember, 7, &banUntil)
	require.NoError(t, err)

	updated, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrustLevelMember, updated.TrustLevel)
	assert.Equal(t, models.WeeklyLimitMember, updated.WeeklyBookingLimit)
	require.NotNil(t, updated.BookingBanUntil)
	assert.WithinDuration(t, banUntil, *updated.BookingBanUntil, time.Second)

	// Clearing the ban stores NULL.
	err = db.UpdateUserTrust(ctx, user.ID, models.TrustLevelRegular, models.WeeklyLimitRegular, 8, nil)
	require.NoError(t, err)

	updated, err = db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.BookingBanUntil)
	assert.Equal(t, 8, updated.SuccessfulBookings)
}

func TestSetEmailVerified(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	user := &models.User{
		Email:              "dave@example.com",
		Name:               "Dave",
		TrustLevel:         models.TrustLevelUnverified,
		WeeklyBookingLimit: models.WeeklyLimitUnverified,
	}
	require.NoError(t, db.CreateUser(ctx, user))

	require.NoError(t, db.SetEmailVerified(ctx, user.ID))

	updated, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, updated.EmailVerified)
	assert.Equal(t, models.TrustLevelMember, updated.TrustLevel)
	assert.Equal(t, models.WeeklyLimitMember, updated.WeeklyBookingLimit)

	// Verifying an already higher-tier account must not demote it.
	require.NoError(t, db.UpdateUserTrust(ctx, user.ID, models.TrustLevelTrusted, models.WeeklyLimitTrusted, 20, nil))
	require.NoError(t, db.SetEmailVerified(ctx, user.ID))

	updated, err = db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrustLevelTrusted, updated.TrustLevel)
	assert.Equal(t, models.WeeklyLimitTrusted, updated.WeeklyBookingLimit)
}
