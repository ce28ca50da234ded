package models

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCanceled  = "canceled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

const (
	// TrustLevelUnverified blocks all bookings until the account is verified.
	TrustLevelUnverified = 0
	TrustLevelMember     = 1
	TrustLevelRegular    = 2
	TrustLevelTrusted    = 3
	TrustLevelVeteran    = 4
)

// Successful-booking thresholds for each tier above member.
const (
	RegularMinSuccessful = 5
	TrustedMinSuccessful = 15
	VeteranMinSuccessful = 40
)

// Weekly booking limits per trust level.
const (
	WeeklyLimitUnverified = 0
	WeeklyLimitMember     = 3
	WeeklyLimitRegular    = 5
	WeeklyLimitTrusted    = 8
	WeeklyLimitVeteran    = 12
)

const (
	// StrikeRetention is how long a strike counts toward the active total.
	StrikeRetention = 60 * 24 * time.Hour

	// CompletionGrace must pass after a booking's end before it can be
	// marked completed, leaving room for no-show reports.
	CompletionGrace = 2 * time.Hour

	// BanStrikeThreshold is the active-strike count that triggers a ban.
	BanStrikeThreshold = 3

	// BanDuration is the length of a strike-triggered booking ban.
	BanDuration = 30 * 24 * time.Hour

	// WeeklyWindow is the rolling window for the weekly booking count.
	WeeklyWindow = 7 * 24 * time.Hour
)

const (
	// EligibilityCacheTTL время жизни снапшота доступности в Redis
	EligibilityCacheTTL = 5 * time.Minute

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRequests количество запросов в окне
	RateLimitRequests = 20

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 * time.Second

	// FacilitiesCacheTTL время жизни кэша площадок в памяти
	FacilitiesCacheTTL = 30 * time.Minute
)

// DeriveTrustLevel computes the trust tier from the successful-booking
// count and the active-strike count. Unverified users are always level 0;
// verified users never drop below level 1, each active strike lowers the
// earned tier by one.
func DeriveTrustLevel(verified bool, successfulBookings, activeStrikes int) int {
	if !verified {
		return TrustLevelUnverified
	}

	level := TrustLevelMember
	switch {
	case successfulBookings >= VeteranMinSuccessful:
		level = TrustLevelVeteran
	case successfulBookings >= TrustedMinSuccessful:
		level = TrustLevelTrusted
	case successfulBookings >= RegularMinSuccessful:
		level = TrustLevelRegular
	}

	level -= activeStrikes
	if level < TrustLevelMember {
		level = TrustLevelMember
	}
	return level
}

// WeeklyLimitForLevel maps a trust level to its weekly booking cap.
// The limit is always recomputed together with the level, never stored
// independently of it.
func WeeklyLimitForLevel(level int) int {
	switch {
	case level <= TrustLevelUnverified:
		return WeeklyLimitUnverified
	case level == TrustLevelMember:
		return WeeklyLimitMember
	case level == TrustLevelRegular:
		return WeeklyLimitRegular
	case level == TrustLevelTrusted:
		return WeeklyLimitTrusted
	default:
		return WeeklyLimitVeteran
	}
}
