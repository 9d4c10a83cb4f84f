package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coupon is a discount code with usage and scope limits.
// At most one of DiscountPercent and DiscountAmount is meant to be set;
// when both are, the percentage wins.
type Coupon struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	Code            string              `json:"code" db:"code"`
	DiscountPercent decimal.NullDecimal `json:"discount_percent" db:"discount_percent"`
	DiscountAmount  *int64              `json:"discount_amount,omitempty" db:"discount_amount"`
	UsageLimit      int                 `json:"usage_limit" db:"usage_limit"`
	UsageCount      int                 `json:"usage_count" db:"usage_count"`
	ServiceComboID  *uuid.UUID          `json:"service_combo_id,omitempty" db:"service_combo_id"`
	ExpiryDate      time.Time           `json:"expiry_date" db:"expiry_date"`
	IsActive        bool                `json:"is_active" db:"is_active"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// IsExpired checks the coupon against the given instant
func (c *Coupon) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiryDate)
}

// HasUsesLeft returns true while usage_count < usage_limit
func (c *Coupon) HasUsesLeft() bool {
	return c.UsageCount < c.UsageLimit
}

// AppliesTo checks the optional combo scope
func (c *Coupon) AppliesTo(comboID *uuid.UUID) bool {
	if c.ServiceComboID == nil {
		return true
	}
	return comboID != nil && *c.ServiceComboID == *comboID
}

// BookingCoupon records that a coupon was applied to a booking.
// (booking_id, coupon_id) is unique.
type BookingCoupon struct {
	BookingID      uuid.UUID `json:"booking_id" db:"booking_id"`
	CouponID       uuid.UUID `json:"coupon_id" db:"coupon_id"`
	DiscountAmount int64     `json:"discount_amount" db:"discount_amount"`
	AppliedAt      time.Time `json:"applied_at" db:"applied_at"`
}

// ValidCoupon is the result of a successful Validate: the coupon and the
// discount it would give on the amount it was validated against
type ValidCoupon struct {
	Coupon         *Coupon
	DiscountAmount int64
}

// AppliedCoupon is the result of a successful Apply
type AppliedCoupon struct {
	Coupon        *Coupon
	BookingCoupon *BookingCoupon
}

// ============================================================================
// REQUEST/RESPONSE DTOs
// ============================================================================

// ValidateCouponRequest previews a coupon against a combo and amount
type ValidateCouponRequest struct {
	Code    string     `json:"code" binding:"required"`
	ComboID *uuid.UUID `json:"combo_id,omitempty"`
	Amount  int64      `json:"amount"`
}

// Validate validates the request
func (r *ValidateCouponRequest) Validate() error {
	if r.Amount < 0 {
		return errors.New("amount cannot be negative")
	}
	return nil
}

// ValidateCouponResponse is the preview result
type ValidateCouponResponse struct {
	Code           string  `json:"code"`
	Valid          bool    `json:"valid"`
	Reason         *string `json:"reason,omitempty"`
	OriginalAmount int64   `json:"original_amount"`
	DiscountAmount int64   `json:"discount_amount"`
	FinalAmount    int64   `json:"final_amount"`
}
