package database

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// CheckAvailability reports whether the facility still has a free court
// for the given date.
func (db *DB) CheckAvailability(ctx context.Context, facilityID int64, date time.Time) (bool, error) {
	bookedCount, err := db.GetBookedCount(ctx, facilityID, date)
	if err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}

	facility, ok := db.facilityByID(facilityID)
	if !ok {
		return false, fmt.Errorf("facility not found in cache: %d", facilityID)
	}

	return bookedCount < int(facility.CourtCount), nil
}

// GetBookedCount returns the number of occupied courts for a facility on
// a date. Canceled and no-show bookings do not hold a court.
func (db *DB) GetBookedCount(ctx context.Context, facilityID int64, date time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE facility_id = ? AND date(start_time) = ? AND status NOT IN (?, ?)`
	var count int
	err := db.QueryRowContext(ctx, query, facilityID,
		date.Format("2006-01-02"), models.StatusCanceled, models.StatusNoShow).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get booked count: %w", err)
	}
	return count, nil
}

// GetAvailabilityForPeriod returns per-day availability starting at startDate.
func (db *DB) GetAvailabilityForPeriod(ctx context.Context, facilityID int64, startDate time.Time, days int) ([]*models.Availability, error) {
	facility, ok := db.facilityByID(facilityID)
	if !ok {
		return nil, fmt.Errorf("facility with ID %d not found", facilityID)
	}

	var availability []*models.Availability
	for i := 0; i < days; i++ {
		currentDate := startDate.AddDate(0, 0, i)
		booked, err := db.GetBookedCount(ctx, facilityID, currentDate)
		if err != nil {
			return nil, err
		}

		availability = append(availability, &models.Availability{
			Date:       currentDate,
			FacilityID: facilityID,
			Booked:     int64(booked),
			Available:  facility.CourtCount - int64(booked),
		})
	}

	return availability, nil
}

// GetFacilityAvailabilityByName resolves a facility by name and returns
// its availability snapshot for a date.
func (db *DB) GetFacilityAvailabilityByName(ctx context.Context, name string, date time.Time) (*models.AvailabilityInfo, error) {
	facility, ok := db.facilityByName(name)
	if !ok {
		return nil, fmt.Errorf("facility not found: %s", name)
	}

	booked, err := db.GetBookedCount(ctx, facility.ID, date)
	if err != nil {
		return nil, err
	}

	return &models.AvailabilityInfo{
		FacilityName: facility.Name,
		Available:    booked < int(facility.CourtCount),
		BookedCount:  int64(booked),
		Total:        facility.CourtCount,
	}, nil
}

// GetFacilityByID prefers the cache and falls back to the caller-visible
// not-found error when the facility is unknown.
func (db *DB) GetFacilityByID(ctx context.Context, id int64) (*models.Facility, error) {
	if f, ok := db.facilityByID(id); ok {
		return f, nil
	}
	return nil, fmt.Errorf("facility with ID %d not found", id)
}

func (db *DB) GetFacilityByName(ctx context.Context, name string) (*models.Facility, error) {
	if f, ok := db.facilityByName(name); ok {
		return f, nil
	}
	return nil, fmt.Errorf("facility not found: %s", name)
}
