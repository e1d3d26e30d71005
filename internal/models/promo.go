package models

import (
	"fmt"
	"time"
)

type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

func ParseDiscountType(s string) (DiscountType, error) {
	switch dt := DiscountType(s); dt {
	case DiscountFlat, DiscountPercentage:
		return dt, nil
	}
	return "", fmt.Errorf("unknown discount type %q", s)
}

// Promo is a discount code scoped to one guesthouse.
type Promo struct {
	ID            int64        `json:"id" yaml:"id"`
	Code          string       `json:"code" yaml:"code"`
	GuesthouseID  int64        `json:"guesthouse_id" yaml:"guesthouse_id"`
	DiscountType  DiscountType `json:"discount_type" yaml:"discount_type"`
	DiscountValue float64      `json:"discount_value" yaml:"discount_value"`
	StartDate     time.Time    `json:"start_date" yaml:"start_date"`
	EndDate       time.Time    `json:"end_date" yaml:"end_date"`
	MaxUsage      *int         `json:"max_usage,omitempty" yaml:"max_usage"`
	UsageCount    int          `json:"usage_count" yaml:"-"`
	IsActive      bool         `json:"is_active" yaml:"is_active"`
	CreatedAt     time.Time    `json:"created_at" yaml:"-"`
}
