package database

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/models"
)

const promotionColumns = `id, facility_id, code, title, discount_type, discount_value,
	                 valid_from, valid_until, is_active, created_at, updated_at`

func (db *DB) CreatePromotion(ctx context.Context, promo *models.Promotion) error {
	if err := promo.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO promotions (
				facility_id, code, title, discount_type, discount_value,
				valid_from, valid_until, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		promo.FacilityID,
		promo.Code,
		promo.Title,
		promo.DiscountType,
		promo.DiscountValue,
		promo.ValidFrom,
		promo.ValidUntil,
		promo.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create promotion: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	promo.ID = id
	promo.CreatedAt = now
	promo.UpdatedAt = now
	return nil
}

func scanPromotion(row interface{ Scan(...any) error }) (*models.Promotion, error) {
	p := &models.Promotion{}
	err := row.Scan(
		&p.ID, &p.FacilityID, &p.Code, &p.Title, &p.DiscountType, &p.DiscountValue,
		&p.ValidFrom, &p.ValidUntil, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = ?`
	p, err := scanPromotion(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get promotion: %w", err)
	}
	return p, nil
}

// GetActivePromotionsForFacility returns active promotions whose validity
// window contains the given time, in ID order.
func (db *DB) GetActivePromotionsForFacility(ctx context.Context, facilityID int64, now time.Time) ([]*models.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions
              WHERE facility_id = ? AND is_active = 1
              AND valid_from <= ? AND valid_until >= ?
              ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, facilityID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get active promotions: %w", err)
	}
	defer rows.Close()

	var promos []*models.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

func (db *DB) DeactivatePromotion(ctx context.Context, id int64) error {
	query := `UPDATE promotions SET is_active = 0, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	return err
}
