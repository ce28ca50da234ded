package models

import "time"

type Facility struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	OwnerID     int64     `yaml:"owner_id" json:"owner_id"`
	CourtCount  int64     `yaml:"court_count" json:"court_count"`
	SortOrder   int64     `yaml:"sort_order" json:"sort_order"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

type Availability struct {
	Date       time.Time `json:"date"`
	FacilityID int64     `json:"facility_id"`
	Booked     int64     `json:"booked"`
	Available  int64     `json:"available"`
}

type AvailabilityInfo struct {
	FacilityName string `json:"facility_name"`
	Available    bool   `json:"available"`
	BookedCount  int64  `json:"booked_count"`
	Total        int64  `json:"total"`
}
