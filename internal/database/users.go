package database

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/models"
)

const userColumns = `id, email, name, phone, email_verified, trust_level,
	                 weekly_booking_limit, successful_bookings, booking_ban_until,
					 created_at, updated_at`

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				email, name, phone, email_verified, trust_level,
				weekly_booking_limit, successful_bookings, booking_ban_until,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		user.Email,
		user.Name,
		user.Phone,
		user.EmailVerified,
		user.TrustLevel,
		user.WeeklyBookingLimit,
		user.SuccessfulBookings,
		user.BookingBanUntil,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return db.queryUser(ctx, query, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return db.queryUser(ctx, query, email)
}

func (db *DB) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Email, &user.Name, &user.Phone, &user.EmailVerified,
		&user.TrustLevel, &user.WeeklyBookingLimit, &user.SuccessfulBookings,
		&user.BookingBanUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserTrust writes the result of a trust recomputation. Level,
// limit, successful count and ban always travel together so the stored
// state can never mix tiers.
func (db *DB) UpdateUserTrust(ctx context.Context, userID int64, trustLevel, weeklyLimit, successfulBookings int, banUntil *time.Time) error {
	query := `UPDATE users SET trust_level = ?, weekly_booking_limit = ?,
	          successful_bookings = ?, booking_ban_until = ?, updated_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query, trustLevel, weeklyLimit, successfulBookings, banUntil, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user trust: %w", err)
	}
	return nil
}

// SetEmailVerified marks the account verified and promotes it out of
// trust level 0 in the same statement.
func (db *DB) SetEmailVerified(ctx context.Context, userID int64) error {
	query := `UPDATE users SET email_verified = 1,
	          trust_level = CASE WHEN trust_level < ? THEN ? ELSE trust_level END,
	          weekly_booking_limit = CASE WHEN weekly_booking_limit < ? THEN ? ELSE weekly_booking_limit END,
	          updated_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query,
		models.TrustLevelMember, models.TrustLevelMember,
		models.WeeklyLimitMember, models.WeeklyLimitMember,
		time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	return nil
}

func (db *DB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get all users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		err := rows.Scan(
			&u.ID, &u.Email, &u.Name, &u.Phone, &u.EmailVerified,
			&u.TrustLevel, &u.WeeklyBookingLimit, &u.SuccessfulBookings,
			&u.BookingBanUntil, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
