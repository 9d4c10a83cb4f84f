package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tourhub/booking-backend/internal/models"
)

const couponColumns = `id, code, discount_percent, discount_amount, usage_limit, usage_count,
	service_combo_id, expiry_date, is_active, created_at, updated_at`

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// CouponRepository handles coupons and booking_coupons
type CouponRepository struct {
	db sqlx.ExtContext
}

// NewCouponRepository creates a coupon repository on a pool or transaction
func NewCouponRepository(db sqlx.ExtContext) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByCode retrieves a coupon by its (normalised) code
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	err := sqlx.GetContext(ctx, r.db, &coupon, query, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get coupon by code: %w", err)
	}

	return &coupon, nil
}

// GetByID retrieves a coupon by ID
func (r *CouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	err := sqlx.GetContext(ctx, r.db, &coupon, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return &coupon, nil
}

// IncrementUsage counts one use while the coupon is still usable
func (r *CouponRepository) IncrementUsage(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE coupons
		SET usage_count = usage_count + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND is_active = TRUE
		  AND expiry_date > $2
		  AND usage_count < usage_limit`

	return execConditional(ctx, r.db, "increment coupon usage", query, id, now)
}

// DecrementUsage gives one use back, never below zero
func (r *CouponRepository) DecrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE coupons
		SET usage_count = usage_count - 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND usage_count > 0`

	return execConditional(ctx, r.db, "decrement coupon usage", query, id)
}

// InsertBookingCoupon records the application; false when the pair already exists
func (r *CouponRepository) InsertBookingCoupon(ctx context.Context, bc *models.BookingCoupon) (bool, error) {
	if bc.AppliedAt.IsZero() {
		bc.AppliedAt = time.Now()
	}

	query := `
		INSERT INTO booking_coupons (booking_id, coupon_id, discount_amount, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id, coupon_id) DO NOTHING`

	inserted, err := execConditional(ctx, r.db, "insert booking coupon", query,
		bc.BookingID, bc.CouponID, bc.DiscountAmount, bc.AppliedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	return inserted, nil
}

// DeleteBookingCoupon removes the application row
func (r *CouponRepository) DeleteBookingCoupon(ctx context.Context, bookingID, couponID uuid.UUID) (bool, error) {
	query := `DELETE FROM booking_coupons WHERE booking_id = $1 AND coupon_id = $2`
	return execConditional(ctx, r.db, "delete booking coupon", query, bookingID, couponID)
}

// GetBookingCoupon returns the coupon applied to a booking, if any
func (r *CouponRepository) GetBookingCoupon(ctx context.Context, bookingID uuid.UUID) (*models.BookingCoupon, error) {
	var bc models.BookingCoupon
	query := `
		SELECT booking_id, coupon_id, discount_amount, applied_at
		FROM booking_coupons
		WHERE booking_id = $1
		ORDER BY applied_at ASC
		LIMIT 1`

	err := sqlx.GetContext(ctx, r.db, &bc, query, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking coupon: %w", err)
	}

	return &bc, nil
}

// isUniqueViolation reports whether err wraps a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}
