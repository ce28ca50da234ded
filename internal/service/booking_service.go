package service

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// ErrNotEligible wraps an eligibility rejection so API callers can show
// the reason to the user.
type ErrNotEligible struct {
	Result *models.EligibilityResult
}

func (e *ErrNotEligible) Error() string {
	return fmt.Sprintf("user %d is not eligible to book: %s", e.Result.UserID, e.Result.ReasonCode)
}

// BookingService creates bookings behind the trust gate and with the
// best promotion applied.
type BookingService struct {
	repo       domain.Repository
	trust      domain.TrustService
	promotions domain.PromotionService
	eventBus   domain.EventPublisher
	logger     *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	trust domain.TrustService,
	promotions domain.PromotionService,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:       repo,
		trust:      trust,
		promotions: promotions,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// CreateBooking runs the eligibility check, applies the best promotion
// to the booking's price and inserts the booking under the availability
// lock.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.EndTime.Before(booking.StartTime) || booking.EndTime.Equal(booking.StartTime) {
		return fmt.Errorf("booking end must be after start")
	}

	eligibility, err := s.trust.CanUserBook(ctx, booking.UserID, time.Now())
	if err != nil {
		return err
	}
	if !eligibility.CanBook {
		return &ErrNotEligible{Result: eligibility}
	}

	facility, err := s.repo.GetFacilityByID(ctx, booking.FacilityID)
	if err != nil {
		return ErrFacilityNotFound
	}
	booking.FacilityName = facility.Name

	if s.promotions != nil && booking.Price > 0 {
		best, err := s.promotions.SelectBestPromotion(ctx, booking.FacilityID, booking.Price, booking.StartTime)
		if err != nil {
			// Pricing must not block the booking; charge the base price.
			s.logger.Warn().Err(err).Int64("facility_id", booking.FacilityID).Msg("promotion selection failed, using base price")
		} else if best != nil {
			booking.Price = best.FinalPrice
			booking.PromotionID = best.PromotionID
		}
	}

	if booking.Status == "" {
		booking.Status = models.StatusPending
	}

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		if err == database.ErrNotAvailable {
			return err
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	// The new booking raises the weekly count; a cached allow must not
	// outlive it.
	if err := s.trust.InvalidateEligibility(ctx, booking.UserID); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", booking.UserID).Msg("failed to invalidate eligibility cache")
	}

	s.publishEvent(events.EventBookingCreated, booking)
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetAvailability(ctx context.Context, facilityID int64, startDate time.Time, days int) ([]*models.Availability, error) {
	return s.repo.GetAvailabilityForPeriod(ctx, facilityID, startDate, days)
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.repo.GetUserBookings(ctx, userID)
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking) {
	if s.eventBus == nil {
		return
	}

	payload := events.TrustEventPayload{
		UserID:    booking.UserID,
		BookingID: booking.ID,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
