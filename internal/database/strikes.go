package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/models"
)

// CreateStrike records a no-show strike. The unique constraint on
// booking_id guarantees a booking can be penalized at most once.
func (db *DB) CreateStrike(ctx context.Context, strike *models.Strike) error {
	query := `INSERT INTO strikes (booking_id, user_id, reporter_id, reason, expired, created_at)
              VALUES (?, ?, ?, ?, 0, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		strike.BookingID,
		strike.UserID,
		strike.ReporterID,
		strike.Reason,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyReported
		}
		return fmt.Errorf("failed to create strike: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	strike.ID = id
	strike.CreatedAt = now
	return nil
}

// GetStrikeByBookingID returns the strike for a booking, or nil when the
// booking has never been reported.
func (db *DB) GetStrikeByBookingID(ctx context.Context, bookingID int64) (*models.Strike, error) {
	query := `SELECT id, booking_id, user_id, reporter_id, reason, expired, created_at, expired_at
              FROM strikes WHERE booking_id = ?`
	var s models.Strike
	err := db.QueryRowContext(ctx, query, bookingID).Scan(
		&s.ID, &s.BookingID, &s.UserID, &s.ReporterID, &s.Reason, &s.Expired, &s.CreatedAt, &s.ExpiredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strike: %w", err)
	}
	return &s, nil
}

// CountActiveStrikes counts unexpired strikes for a user.
func (db *DB) CountActiveStrikes(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM strikes WHERE user_id = ? AND expired = 0`
	var count int
	if err := db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active strikes: %w", err)
	}
	return count, nil
}

// ExpireStrikesBefore marks unexpired strikes created before the cutoff
// as expired and returns the affected user IDs. Strikes are kept for
// audit history, never deleted. Safe to run repeatedly.
func (db *DB) ExpireStrikesBefore(ctx context.Context, cutoff time.Time) (int, []int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM strikes WHERE expired = 0 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to select expiring strikes: %w", err)
	}

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE strikes SET expired = 1, expired_at = ? WHERE expired = 0 AND created_at < ?`,
		time.Now(), cutoff)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to expire strikes: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	return int(count), userIDs, nil
}

// GetUserStrikes returns all strikes for a user, newest first.
func (db *DB) GetUserStrikes(ctx context.Context, userID int64) ([]*models.Strike, error) {
	query := `SELECT id, booking_id, user_id, reporter_id, reason, expired, created_at, expired_at
              FROM strikes WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user strikes: %w", err)
	}
	defer rows.Close()

	var strikes []*models.Strike
	for rows.Next() {
		s := &models.Strike{}
		err := rows.Scan(&s.ID, &s.BookingID, &s.UserID, &s.ReporterID, &s.Reason, &s.Expired, &s.CreatedAt, &s.ExpiredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strike: %w", err)
		}
		strikes = append(strikes, s)
	}
	return strikes, rows.Err()
}

// GetAllStrikes returns every strike, newest first. Used by report exports.
func (db *DB) GetAllStrikes(ctx context.Context) ([]*models.Strike, error) {
	query := `SELECT id, booking_id, user_id, reporter_id, reason, expired, created_at, expired_at
              FROM strikes ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get strikes: %w", err)
	}
	defer rows.Close()

	var strikes []*models.Strike
	for rows.Next() {
		s := &models.Strike{}
		err := rows.Scan(&s.ID, &s.BookingID, &s.UserID, &s.ReporterID, &s.Reason, &s.Expired, &s.CreatedAt, &s.ExpiredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strike: %w", err)
		}
		strikes = append(strikes, s)
	}
	return strikes, rows.Err()
}
