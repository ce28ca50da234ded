package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/models"
)

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				user_id, user_name, facility_id, facility_name, court_name,
				start_time, end_time, status, price, promotion_id, comment,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		booking.UserID,
		booking.UserName,
		booking.FacilityID,
		booking.FacilityName,
		booking.CourtName,
		booking.StartTime,
		booking.EndTime,
		booking.Status,
		booking.Price,
		booking.PromotionID,
		booking.Comment,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return nil
}

// CreateBookingWithLock checks court availability and inserts the booking
// inside a single transaction, so two concurrent requests cannot both take
// the last court.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var bookedCount int
	queryCount := `SELECT COUNT(*) FROM bookings
                   WHERE facility_id = ? AND date(start_time) = ? AND status NOT IN (?, ?)`
	err = tx.QueryRowContext(ctx, queryCount, booking.FacilityID,
		booking.StartTime.Format("2006-01-02"), models.StatusCanceled, models.StatusNoShow).Scan(&bookedCount)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}

	facility, ok := db.facilityByID(booking.FacilityID)
	if !ok {
		return fmt.Errorf("facility not found in cache: %d", booking.FacilityID)
	}

	if bookedCount >= int(facility.CourtCount) {
		return ErrNotAvailable
	}

	queryInsert := `INSERT INTO bookings (
				user_id, user_name, facility_id, facility_name, court_name,
				start_time, end_time, status, price, promotion_id, comment,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.UserID,
		booking.UserName,
		booking.FacilityID,
		booking.FacilityName,
		booking.CourtName,
		booking.StartTime,
		booking.EndTime,
		booking.Status,
		booking.Price,
		booking.PromotionID,
		booking.Comment,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

const bookingColumns = `id, user_id, user_name, facility_id, facility_name, court_name,
	                 start_time, end_time, status, price, promotion_id, comment,
					 created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	b := &models.Booking{}
	err := row.Scan(
		&b.ID, &b.UserID, &b.UserName, &b.FacilityID, &b.FacilityName, &b.CourtName,
		&b.StartTime, &b.EndTime, &b.Status, &b.Price, &b.PromotionID, &b.Comment,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	return err
}

// UpdateBookingStatusWithVersion performs an optimistic-lock status
// update; ErrConcurrentModification means another writer won.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CountUserBookingsSince returns how many bookings the user created in
// the window [since, until). Canceled bookings still count toward the
// weekly quota; the slot was held.
func (db *DB) CountUserBookingsSince(ctx context.Context, userID int64, since, until time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE user_id = ? AND created_at >= ? AND created_at < ?`
	var count int
	err := db.QueryRowContext(ctx, query, userID, since, until).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user bookings: %w", err)
	}
	return count, nil
}

// GetBookingsEndedBefore returns confirmed/pending bookings whose slot
// ended before the cutoff, oldest first. These are the candidates for
// completion processing.
func (db *DB) GetBookingsEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE end_time <= ? AND status IN (?, ?)
              ORDER BY end_time ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, cutoff, models.StatusPending, models.StatusConfirmed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ended bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY start_time DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE date(start_time) >= ? AND date(start_time) <= ?
              ORDER BY start_time ASC`
	rows, err := db.QueryContext(ctx, query,
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
