package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// batchLimit caps how many ended bookings one cron run picks up.
const batchLimit = 200

// TrustService owns the booking-eligibility rules: who may book, what
// happens when a booking completes, and how no-shows degrade standing.
type TrustService struct {
	repo     domain.Repository
	cache    domain.CacheRepository
	eventBus domain.EventPublisher
	notifier domain.ManagerNotifier
	logger   *zerolog.Logger

	strikeRetention time.Duration
	completionGrace time.Duration
	banThreshold    int
	banDuration     time.Duration

	now func() time.Time
}

func NewTrustService(
	repo domain.Repository,
	cache domain.CacheRepository,
	eventBus domain.EventPublisher,
	notifier domain.ManagerNotifier,
	cfg config.TrustConfig,
	logger *zerolog.Logger,
) *TrustService {
	s := &TrustService{
		repo:            repo,
		cache:           cache,
		eventBus:        eventBus,
		notifier:        notifier,
		logger:          logger,
		strikeRetention: models.StrikeRetention,
		completionGrace: models.CompletionGrace,
		banThreshold:    models.BanStrikeThreshold,
		banDuration:     models.BanDuration,
		now:             time.Now,
	}
	if cfg.StrikeRetentionDays > 0 {
		s.strikeRetention = time.Duration(cfg.StrikeRetentionDays) * 24 * time.Hour
	}
	if cfg.CompletionGraceHours > 0 {
		s.completionGrace = time.Duration(cfg.CompletionGraceHours) * time.Hour
	}
	if cfg.BanStrikeThreshold > 0 {
		s.banThreshold = cfg.BanStrikeThreshold
	}
	if cfg.BanDurationDays > 0 {
		s.banDuration = time.Duration(cfg.BanDurationDays) * 24 * time.Hour
	}
	return s
}

// CanUserBook runs the eligibility rule chain for a user. Rules are
// checked in a fixed order (ban, verification, weekly quota) so the
// reported reason is always the first one that applies.
func (s *TrustService) CanUserBook(ctx context.Context, userID int64, at time.Time) (*models.EligibilityResult, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetEligibility(ctx, userID); err == nil && cached != nil {
			return cached, nil
		}
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	result := &models.EligibilityResult{
		UserID:      user.ID,
		TrustLevel:  user.TrustLevel,
		WeeklyLimit: user.WeeklyBookingLimit,
		CheckedAt:   at,
	}

	switch {
	case user.Banned(at):
		result.ReasonCode = models.ReasonBanned
		result.Reason = fmt.Sprintf("booking ban active until %s", user.BookingBanUntil.Format(time.RFC3339))

	case !user.EmailVerified:
		result.ReasonCode = models.ReasonUnverified
		result.Reason = "account email is not verified"

	default:
		count, err := s.repo.CountUserBookingsSince(ctx, userID, at.Add(-models.WeeklyWindow), at)
		if err != nil {
			return nil, fmt.Errorf("failed to count weekly bookings: %w", err)
		}
		result.WeeklyCount = count
		if count >= user.WeeklyBookingLimit {
			result.ReasonCode = models.ReasonWeeklyLimit
			result.Reason = fmt.Sprintf("weekly limit of %d bookings reached", user.WeeklyBookingLimit)
		} else {
			result.CanBook = true
		}
	}

	if !result.CanBook {
		metrics.IncBlocked(result.ReasonCode)
	}

	if s.cache != nil {
		if err := s.cache.SetEligibility(ctx, userID, result, models.EligibilityCacheTTL); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to cache eligibility")
		}
	}

	return result, nil
}

// ProcessBookingCompletion marks an ended booking completed and credits
// the user. Calling it again for the same booking is a no-op, so retries
// from the worker and the cron endpoint cannot double-credit.
func (s *TrustService) ProcessBookingCompletion(ctx context.Context, bookingID int64) (*models.CompletionResult, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	result := &models.CompletionResult{BookingID: booking.ID, UserID: booking.UserID}

	switch booking.Status {
	case models.StatusCompleted:
		result.AlreadyProcessed = true
		return result, nil
	case models.StatusCanceled, models.StatusNoShow:
		result.Skipped = true
		result.SkipReason = booking.Status
		return result, nil
	case models.StatusPending, models.StatusConfirmed:
		// fall through
	default:
		return nil, ErrInvalidBookingState
	}

	now := s.now()
	if now.Before(booking.CompletableAt()) {
		return nil, ErrBookingNotCompletable
	}

	// Load the user before flipping the status: if the user lookup
	// fails the booking stays confirmed and a retry can still credit it.
	user, err := s.repo.GetUserByID(ctx, booking.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for completion: %w", err)
	}

	activeStrikes, err := s.repo.CountActiveStrikes(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count strikes: %w", err)
	}

	err = s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, models.StatusCompleted)
	if err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			// Another worker got there first; re-read to report honestly.
			fresh, freshErr := s.repo.GetBooking(ctx, bookingID)
			if freshErr == nil && fresh.Status == models.StatusCompleted {
				result.AlreadyProcessed = true
				return result, nil
			}
		}
		return nil, fmt.Errorf("failed to complete booking: %w", err)
	}

	successful := user.SuccessfulBookings + 1
	newLevel := models.DeriveTrustLevel(user.EmailVerified, successful, activeStrikes)
	newLimit := models.WeeklyLimitForLevel(newLevel)

	err = s.repo.UpdateUserTrust(ctx, user.ID, newLevel, newLimit, successful, user.BookingBanUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to update user trust: %w", err)
	}

	result.TrustLevel = newLevel
	result.Promoted = newLevel > user.TrustLevel

	s.invalidateEligibility(ctx, user.ID)

	s.publish(events.EventBookingCompleted, events.TrustEventPayload{
		UserID: user.ID, BookingID: booking.ID, TrustLevel: newLevel,
	})
	if result.Promoted {
		s.logger.Info().Int64("user_id", user.ID).Int("trust_level", newLevel).Msg("user promoted")
		s.publish(events.EventUserPromoted, events.TrustEventPayload{
			UserID: user.ID, TrustLevel: newLevel,
		})
	}

	return result, nil
}

// ReportNoShow records a strike against the booking's owner and degrades
// their standing. A booking can be penalized at most once; the second
// report gets database.ErrAlreadyReported.
func (s *TrustService) ReportNoShow(ctx context.Context, bookingID, reporterID int64, reason string) (*models.NoShowResult, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	now := s.now()
	if !booking.Ended(now) {
		return nil, ErrBookingNotEnded
	}

	switch booking.Status {
	case models.StatusCompleted, models.StatusCanceled:
		return nil, ErrInvalidBookingState
	}

	strike := &models.Strike{
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		ReporterID: reporterID,
		Reason:     reason,
	}
	if err := s.repo.CreateStrike(ctx, strike); err != nil {
		return nil, err
	}
	metrics.IncStrike()

	if booking.Status != models.StatusNoShow {
		if err := s.repo.UpdateBookingStatus(ctx, booking.ID, models.StatusNoShow); err != nil {
			return nil, fmt.Errorf("failed to mark booking no-show: %w", err)
		}
	}

	user, err := s.repo.GetUserByID(ctx, booking.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for no-show: %w", err)
	}

	activeStrikes, err := s.repo.CountActiveStrikes(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count strikes: %w", err)
	}

	newLevel := models.DeriveTrustLevel(user.EmailVerified, user.SuccessfulBookings, activeStrikes)
	newLimit := models.WeeklyLimitForLevel(newLevel)

	result := &models.NoShowResult{
		BookingID:      booking.ID,
		UserID:         user.ID,
		StrikeID:       strike.ID,
		PenaltyApplied: true,
		ActiveStrikes:  activeStrikes,
		TrustLevel:     newLevel,
	}

	banUntil := user.BookingBanUntil
	if activeStrikes >= s.banThreshold {
		until := now.Add(s.banDuration)
		// An existing longer ban is never shortened.
		if banUntil == nil || banUntil.Before(until) {
			banUntil = &until
		}
		result.BannedUntil = banUntil
		metrics.IncBan()
	}

	err = s.repo.UpdateUserTrust(ctx, user.ID, newLevel, newLimit, user.SuccessfulBookings, banUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to update user trust: %w", err)
	}

	s.invalidateEligibility(ctx, user.ID)

	s.logger.Info().
		Int64("user_id", user.ID).
		Int64("booking_id", booking.ID).
		Int("active_strikes", activeStrikes).
		Msg("no-show strike recorded")

	s.publish(events.EventStrikeReported, events.TrustEventPayload{
		UserID: user.ID, BookingID: booking.ID, TrustLevel: newLevel, ActiveStrikes: activeStrikes,
	})
	s.notifyStrike(user.ID, booking.ID, activeStrikes)

	if result.BannedUntil != nil {
		s.publish(events.EventUserBanned, events.TrustEventPayload{
			UserID: user.ID, TrustLevel: newLevel, ActiveStrikes: activeStrikes, BannedUntil: result.BannedUntil,
		})
		s.notifyBan(user.ID, *result.BannedUntil)
	}

	return result, nil
}

// ExpireOldStrikes ages out strikes past the retention window and
// restores the standing of affected users. Safe to run repeatedly.
func (s *TrustService) ExpireOldStrikes(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.strikeRetention)

	count, userIDs, err := s.repo.ExpireStrikesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire strikes: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	for _, userID := range userIDs {
		if err := s.recomputeTrust(ctx, userID); err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to recompute trust after strike expiry")
		}
	}

	s.publish(events.EventStrikesExpired, map[string]interface{}{
		"expired": count, "users": userIDs,
	})

	return count, nil
}

// ProcessEndedBookings is the cron batch: complete everything whose
// grace window has passed, then expire old strikes. One failing record
// never aborts the rest of the batch.
func (s *TrustService) ProcessEndedBookings(ctx context.Context) (*models.BatchResult, error) {
	result := &models.BatchResult{StartedAt: s.now()}

	cutoff := s.now().Add(-s.completionGrace)
	bookings, err := s.repo.GetBookingsEndedBefore(ctx, cutoff, batchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load ended bookings: %w", err)
	}

	for _, booking := range bookings {
		result.Processed++
		completion, err := s.ProcessBookingCompletion(ctx, booking.ID)
		if err != nil {
			metrics.IncBatchItem("error")
			result.Errors = append(result.Errors, models.BatchError{
				BookingID: booking.ID,
				Error:     err.Error(),
			})
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("batch completion failed")
			// Hand the booking to the worker for a retried attempt.
			s.publish(events.EventCompletionRetry, events.TrustEventPayload{
				UserID: booking.UserID, BookingID: booking.ID,
			})
			continue
		}
		switch {
		case completion.Skipped || completion.AlreadyProcessed:
			metrics.IncBatchItem("skipped")
			result.Skipped++
		default:
			metrics.IncBatchItem("completed")
			result.Completed++
		}
	}

	expired, err := s.ExpireOldStrikes(ctx)
	if err != nil {
		// Strike expiry failing must not discard the completion results.
		result.Errors = append(result.Errors, models.BatchError{Error: err.Error()})
		s.logger.Error().Err(err).Msg("batch strike expiry failed")
	}
	result.StrikesExpired = expired

	result.FinishedAt = s.now()
	s.logger.Info().
		Int("processed", result.Processed).
		Int("completed", result.Completed).
		Int("skipped", result.Skipped).
		Int("strikes_expired", result.StrikesExpired).
		Int("errors", len(result.Errors)).
		Msg("batch run finished")

	return result, nil
}

// recomputeTrust rebuilds a user's derived fields from current state.
// The stored ban timestamp is left untouched; bans expire by time alone.
func (s *TrustService) recomputeTrust(ctx context.Context, userID int64) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	activeStrikes, err := s.repo.CountActiveStrikes(ctx, userID)
	if err != nil {
		return err
	}

	newLevel := models.DeriveTrustLevel(user.EmailVerified, user.SuccessfulBookings, activeStrikes)
	newLimit := models.WeeklyLimitForLevel(newLevel)

	if err := s.repo.UpdateUserTrust(ctx, userID, newLevel, newLimit, user.SuccessfulBookings, user.BookingBanUntil); err != nil {
		return err
	}

	s.invalidateEligibility(ctx, userID)
	return nil
}

// InvalidateEligibility drops the user's cached eligibility snapshot so
// the next check recounts against the database. Callers that change a
// user's booking count or standing must call this.
func (s *TrustService) InvalidateEligibility(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateEligibility(ctx, userID)
}

func (s *TrustService) invalidateEligibility(ctx context.Context, userID int64) {
	if err := s.InvalidateEligibility(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to invalidate eligibility cache")
	}
}

func (s *TrustService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (s *TrustService) notifyStrike(userID, bookingID int64, activeStrikes int) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStrike(userID, bookingID, activeStrikes); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("strike notification failed")
	}
}

func (s *TrustService) notifyBan(userID int64, until time.Time) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyBan(userID, until); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("ban notification failed")
	}
}
