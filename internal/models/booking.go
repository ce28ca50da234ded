package models

import "time"

type Booking struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name"`
	FacilityID   int64     `json:"facility_id"`
	FacilityName string    `json:"facility_name"`
	CourtName    string    `json:"court_name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"` // pending, confirmed, canceled, completed, no_show
	Price        float64   `json:"price"`
	PromotionID  int64     `json:"promotion_id,omitempty"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}

// Ended reports whether the booking's slot is fully in the past.
func (b *Booking) Ended(now time.Time) bool {
	return b.EndTime.Before(now)
}

// CompletableAt returns the earliest time the booking may be marked completed.
func (b *Booking) CompletableAt() time.Time {
	return b.EndTime.Add(CompletionGrace)
}
