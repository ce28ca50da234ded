package domain

import (
	"context"
	"time"

	"courtbook/internal/models"
)

type Repository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, id int64, status string) error
	UpdateBookingStatusWithVersion(ctx context.Context, id int64, version int64, status string) error
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	CountUserBookingsSince(ctx context.Context, userID int64, since, until time.Time) (int, error)
	GetBookingsEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)

	CheckAvailability(ctx context.Context, facilityID int64, date time.Time) (bool, error)
	GetBookedCount(ctx context.Context, facilityID int64, date time.Time) (int, error)
	GetAvailabilityForPeriod(ctx context.Context, facilityID int64, startDate time.Time, days int) ([]*models.Availability, error)
	GetFacilityAvailabilityByName(ctx context.Context, name string, date time.Time) (*models.AvailabilityInfo, error)
	GetFacilities() []*models.Facility
	GetFacilityByID(ctx context.Context, id int64) (*models.Facility, error)
	GetFacilityByName(ctx context.Context, name string) (*models.Facility, error)
	SetFacilities(facilities []*models.Facility)

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	UpdateUserTrust(ctx context.Context, userID int64, trustLevel, weeklyLimit, successfulBookings int, banUntil *time.Time) error
	SetEmailVerified(ctx context.Context, userID int64) error

	CreateStrike(ctx context.Context, strike *models.Strike) error
	GetStrikeByBookingID(ctx context.Context, bookingID int64) (*models.Strike, error)
	CountActiveStrikes(ctx context.Context, userID int64) (int, error)
	ExpireStrikesBefore(ctx context.Context, cutoff time.Time) (int, []int64, error)
	GetUserStrikes(ctx context.Context, userID int64) ([]*models.Strike, error)
	GetAllStrikes(ctx context.Context) ([]*models.Strike, error)

	CreatePromotion(ctx context.Context, promo *models.Promotion) error
	GetPromotion(ctx context.Context, id int64) (*models.Promotion, error)
	GetActivePromotionsForFacility(ctx context.Context, facilityID int64, now time.Time) ([]*models.Promotion, error)
	DeactivatePromotion(ctx context.Context, id int64) error
}

// CacheRepository caches eligibility snapshots and tracks request rates.
// Implementations may lose data at any time; the database stays authoritative.
type CacheRepository interface {
	GetEligibility(ctx context.Context, userID int64) (*models.EligibilityResult, error)
	SetEligibility(ctx context.Context, userID int64, result *models.EligibilityResult, ttl time.Duration) error
	InvalidateEligibility(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// TrustService decides whether users may book and keeps their trust
// standing current as bookings complete, no-shows get reported and
// strikes age out.
type TrustService interface {
	CanUserBook(ctx context.Context, userID int64, at time.Time) (*models.EligibilityResult, error)
	ProcessBookingCompletion(ctx context.Context, bookingID int64) (*models.CompletionResult, error)
	ReportNoShow(ctx context.Context, bookingID, reporterID int64, reason string) (*models.NoShowResult, error)
	ExpireOldStrikes(ctx context.Context) (int, error)
	ProcessEndedBookings(ctx context.Context) (*models.BatchResult, error)
	InvalidateEligibility(ctx context.Context, userID int64) error
}

// PromotionService picks the best applicable discount for a booking.
type PromotionService interface {
	SelectBestPromotion(ctx context.Context, facilityID int64, basePrice float64, at time.Time) (*models.PromotionEligibility, error)
	CalculateFinalPrice(basePrice float64, promo *models.Promotion) float64
	Quote(ctx context.Context, facilityID int64, basePrice float64, at time.Time) (*models.PromotionEligibility, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetAvailability(ctx context.Context, facilityID int64, startDate time.Time, days int) ([]*models.Availability, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
}

// ManagerNotifier delivers out-of-band alerts (bans, strikes) to
// facility managers.
type ManagerNotifier interface {
	NotifyStrike(userID, bookingID int64, activeStrikes int) error
	NotifyBan(userID int64, until time.Time) error
}

type SheetsWriter interface {
	UpdateUsersSheet(ctx context.Context, users []*models.User) error
	UpdateStrikesSheet(ctx context.Context, strikes []*models.Strike) error
}

type TrustWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64) error
}

type ReportExporter interface {
	ExportTrustReport(ctx context.Context, users []*models.User, strikes []*models.Strike, path string) error
}
