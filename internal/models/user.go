package models

import "time"

type User struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone"`
	EmailVerified      bool       `json:"email_verified"`
	TrustLevel         int        `json:"trust_level"`
	WeeklyBookingLimit int        `json:"weekly_booking_limit"`
	SuccessfulBookings int        `json:"successful_bookings"`
	BookingBanUntil    *time.Time `json:"booking_ban_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Banned reports whether the user has an active booking ban at the given time.
func (u *User) Banned(now time.Time) bool {
	return u.BookingBanUntil != nil && u.BookingBanUntil.After(now)
}
