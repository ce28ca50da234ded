package models

import (
	"errors"
	"time"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

type Promotion struct {
	ID            int64     `json:"id"`
	FacilityID    int64     `json:"facility_id"`
	Code          string    `json:"code"`
	Title         string    `json:"title"`
	DiscountType  string    `json:"discount_type"`
	DiscountValue float64   `json:"discount_value"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUntil    time.Time `json:"valid_until"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ValidAt reports whether the promotion applies at the given time.
func (p *Promotion) ValidAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if !p.ValidFrom.IsZero() && now.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidUntil.IsZero() && now.After(p.ValidUntil) {
		return false
	}
	return true
}

// Validate checks promotion fields on write. The pricing math itself
// stays unvalidated, so bad values must be rejected here.
func (p *Promotion) Validate() error {
	if p.Code == "" {
		return errors.New("promotion code is required")
	}
	switch p.DiscountType {
	case DiscountPercentage:
		if p.DiscountValue < 0 || p.DiscountValue > 100 {
			return errors.New("percentage discount must be within [0, 100]")
		}
	case DiscountFixed:
		if p.DiscountValue < 0 {
			return errors.New("fixed discount must not be negative")
		}
	default:
		return errors.New("unknown discount type: " + p.DiscountType)
	}
	return nil
}

// PromotionEligibility is a transient per-quote computation result.
// It is rebuilt on every pricing evaluation and never persisted.
type PromotionEligibility struct {
	PromotionID    int64   `json:"promotion_id"`
	Code           string  `json:"code"`
	DiscountType   string  `json:"discount_type"`
	DiscountValue  float64 `json:"discount_value"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalPrice     float64 `json:"final_price"`
}
