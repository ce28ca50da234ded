package models

import "time"

type Strike struct {
	ID         int64      `json:"id"`
	BookingID  int64      `json:"booking_id"`
	UserID     int64      `json:"user_id"`
	ReporterID int64      `json:"reporter_id"`
	Reason     string     `json:"reason"`
	Expired    bool       `json:"expired"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiredAt  *time.Time `json:"expired_at,omitempty"`
}
