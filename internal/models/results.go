package models

import "time"

// Eligibility reason codes returned to API clients.
const (
	ReasonBanned       = "banned"
	ReasonUnverified   = "unverified"
	ReasonWeeklyLimit  = "weekly_limit"
	ReasonEligible     = ""
)

// EligibilityResult is the outcome of a booking eligibility check.
type EligibilityResult struct {
	UserID      int64  `json:"user_id"`
	CanBook     bool   `json:"can_book"`
	TrustLevel  int    `json:"trust_level"`
	WeeklyLimit int    `json:"weekly_limit"`
	WeeklyCount int    `json:"weekly_count"`
	ReasonCode  string `json:"reason_code,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// CompletionResult describes the outcome of processing one ended booking.
type CompletionResult struct {
	BookingID        int64 `json:"booking_id"`
	UserID           int64 `json:"user_id"`
	AlreadyProcessed bool  `json:"already_processed"`
	Skipped          bool  `json:"skipped"`
	SkipReason       string `json:"skip_reason,omitempty"`
	TrustLevel       int   `json:"trust_level"`
	Promoted         bool  `json:"promoted"`
}

// NoShowResult describes the outcome of a no-show report.
type NoShowResult struct {
	BookingID      int64      `json:"booking_id"`
	UserID         int64      `json:"user_id"`
	StrikeID       int64      `json:"strike_id"`
	PenaltyApplied bool       `json:"penalty_applied"`
	ActiveStrikes  int        `json:"active_strikes"`
	TrustLevel     int        `json:"trust_level"`
	BannedUntil    *time.Time `json:"banned_until,omitempty"`
}

// BatchError records a single failed item inside a batch run.
type BatchError struct {
	BookingID int64  `json:"booking_id"`
	Error     string `json:"error"`
}

// BatchResult summarizes a cron batch run. One erroring record never
// aborts the remaining items; failures are collected here instead.
type BatchResult struct {
	Processed      int          `json:"processed"`
	Completed      int          `json:"completed"`
	Skipped        int          `json:"skipped"`
	StrikesExpired int          `json:"strikes_expired"`
	Errors         []BatchError `json:"errors,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
}
