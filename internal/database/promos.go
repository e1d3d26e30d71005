package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guesthouse/internal/domain"
	"guesthouse/internal/models"
)

func (db *DB) CreatePromo(ctx context.Context, promo *models.Promo) error {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	var maxUsage sql.NullInt64
	if promo.MaxUsage != nil {
		maxUsage = sql.NullInt64{Int64: int64(*promo.MaxUsage), Valid: true}
	}

	query := `INSERT INTO promos (
				code, guesthouse_id, discount_type, discount_value, start_date, end_date,
				max_usage, usage_count, is_active, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		promo.Code,
		promo.GuesthouseID,
		string(promo.DiscountType),
		promo.DiscountValue,
		promo.StartDate.Format(models.DateLayout),
		promo.EndDate.Format(models.DateLayout),
		maxUsage,
		promo.IsActive,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePromo
		}
		return fmt.Errorf("failed to create promo: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	promo.ID = id
	promo.UsageCount = 0
	promo.CreatedAt = now
	return nil
}

// GetPromoByCode looks the code up case-insensitively.
func (db *DB) GetPromoByCode(ctx context.Context, code string) (*models.Promo, error) {
	query := `SELECT id, code, guesthouse_id, discount_type, discount_value, start_date, end_date,
	                 max_usage, usage_count, is_active, created_at
              FROM promos WHERE code = ?`
	var p models.Promo
	var discountType, start, end string
	var maxUsage sql.NullInt64
	err := db.QueryRowContext(ctx, query, strings.ToUpper(strings.TrimSpace(code))).Scan(
		&p.ID, &p.Code, &p.GuesthouseID, &discountType, &p.DiscountValue, &start, &end,
		&maxUsage, &p.UsageCount, &p.IsActive, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPromoNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promo: %w", err)
	}

	if p.DiscountType, err = models.ParseDiscountType(discountType); err != nil {
		return nil, err
	}
	if p.StartDate, err = time.Parse(models.DateLayout, start); err != nil {
		return nil, fmt.Errorf("failed to parse promo start %s: %w", start, err)
	}
	if p.EndDate, err = time.Parse(models.DateLayout, end); err != nil {
		return nil, fmt.Errorf("failed to parse promo end %s: %w", end, err)
	}
	if maxUsage.Valid {
		v := int(maxUsage.Int64)
		p.MaxUsage = &v
	}
	return &p, nil
}

func (db *DB) SetPromoActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx, `UPDATE promos SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update promo: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: promo %d", domain.ErrNotFound, id)
	}
	return nil
}
