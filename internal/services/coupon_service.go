package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/repository"
	"github.com/tourhub/booking-backend/pkg/validator"
)

var hundred = decimal.NewFromInt(100)

// CouponService validates coupons and owns their usage counter
type CouponService struct {
	uow    repository.UnitOfWork
	codes  *validator.CouponCodeValidator
	logger *logrus.Logger
	now    func() time.Time
}

// NewCouponService creates a new coupon service
func NewCouponService(uow repository.UnitOfWork, logger *logrus.Logger) *CouponService {
	return &CouponService{
		uow:    uow,
		codes:  validator.NewCouponCodeValidator(),
		logger: logger,
		now:    time.Now,
	}
}

// ComputeDiscount returns the discount a coupon gives on originalAmount.
// Percentage discounts take precedence over flat amounts when both are set.
// Percentages are rounded down to a whole amount. The result is always
// within [0, originalAmount].
func ComputeDiscount(coupon *models.Coupon, originalAmount int64) int64 {
	if coupon == nil || originalAmount <= 0 {
		return 0
	}

	var discount int64
	switch {
	case coupon.DiscountPercent.Valid:
		discount = decimal.NewFromInt(originalAmount).
			Mul(coupon.DiscountPercent.Decimal).
			Div(hundred).
			Floor().
			IntPart()
	case coupon.DiscountAmount != nil:
		discount = *coupon.DiscountAmount
	}

	if discount < 0 {
		return 0
	}
	if discount > originalAmount {
		return originalAmount
	}
	return discount
}

// Validate checks a coupon without mutating anything and quotes its
// discount on amount. A rejected coupon is returned as *models.CouponRejection.
func (s *CouponService) Validate(ctx context.Context, code string, comboID *uuid.UUID, amount int64) (*models.ValidCoupon, error) {
	coupon, err := s.ValidateTx(ctx, s.uow.Store(), code, comboID)
	if err != nil {
		return nil, err
	}
	return &models.ValidCoupon{
		Coupon:         coupon,
		DiscountAmount: ComputeDiscount(coupon, amount),
	}, nil
}

// ValidateTx is Validate on the caller's transaction
func (s *CouponService) ValidateTx(ctx context.Context, tx repository.Store, code string, comboID *uuid.UUID) (*models.Coupon, error) {
	normalized, err := s.codes.Validate(code)
	if err != nil {
		return nil, &models.CouponRejection{Code: code, Reason: models.ErrCouponNotFound}
	}

	coupon, err := tx.Coupons().GetByCode(ctx, normalized)
	if err != nil {
		return nil, err
	}

	reject := func(reason error) error {
		return &models.CouponRejection{Code: normalized, Reason: reason}
	}

	switch {
	case coupon == nil:
		return nil, reject(models.ErrCouponNotFound)
	case !coupon.IsActive:
		return nil, reject(models.ErrCouponInactive)
	case coupon.IsExpired(s.now()):
		return nil, reject(models.ErrCouponExpired)
	case !coupon.HasUsesLeft():
		return nil, reject(models.ErrCouponUsageLimitReached)
	case !coupon.AppliesTo(comboID):
		return nil, reject(models.ErrCouponScopeMismatch)
	}

	return coupon, nil
}

// Preview validates a coupon and computes the discount for the given amount
func (s *CouponService) Preview(ctx context.Context, req *models.ValidateCouponRequest) (*models.ValidateCouponResponse, error) {
	resp := &models.ValidateCouponResponse{
		Code:           s.codes.Sanitize(req.Code),
		OriginalAmount: req.Amount,
		FinalAmount:    req.Amount,
	}

	valid, err := s.Validate(ctx, req.Code, req.ComboID, req.Amount)
	if err != nil {
		var rejection *models.CouponRejection
		if errors.As(err, &rejection) {
			reason := rejection.ReasonCode()
			resp.Reason = &reason
			return resp, nil
		}
		return nil, err
	}

	resp.Valid = true
	resp.DiscountAmount = valid.DiscountAmount
	resp.FinalAmount = req.Amount - resp.DiscountAmount
	return resp, nil
}

// Apply applies a coupon to a pending booking in its own transaction
func (s *CouponService) Apply(ctx context.Context, code string, bookingID uuid.UUID) (*models.AppliedCoupon, error) {
	var applied *models.AppliedCoupon
	err := s.uow.WithinTx(ctx, func(tx repository.Store) error {
		booking, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return models.ErrBookingNotFound
		}
		applied, err = s.ApplyTx(ctx, tx, code, booking)
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// ApplyTx re-validates the coupon, records the (booking, coupon) pair, counts
// one use and rewrites the booking totals, all on the caller's transaction.
// The pair insert and the bounded increment are both conditional, so of two
// racing applications only one can succeed. booking is updated in place.
func (s *CouponService) ApplyTx(ctx context.Context, tx repository.Store, code string, booking *models.Booking) (*models.AppliedCoupon, error) {
	if !booking.IsPending() {
		return nil, fmt.Errorf("%w: cannot apply coupon to %s booking", models.ErrInvalidTransition, booking.Status)
	}

	coupon, err := s.ValidateTx(ctx, tx, code, &booking.ComboID)
	if err != nil {
		return nil, err
	}

	existing, err := tx.Coupons().GetBookingCoupon(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &models.CouponRejection{Code: coupon.Code, Reason: models.ErrCouponAlreadyApplied}
	}

	discount := ComputeDiscount(coupon, booking.OriginalAmount)
	bc := &models.BookingCoupon{
		BookingID:      booking.ID,
		CouponID:       coupon.ID,
		DiscountAmount: discount,
		AppliedAt:      s.now(),
	}

	inserted, err := tx.Coupons().InsertBookingCoupon(ctx, bc)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, &models.CouponRejection{Code: coupon.Code, Reason: models.ErrCouponAlreadyApplied}
	}

	counted, err := tx.Coupons().IncrementUsage(ctx, coupon.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !counted {
		// Lost the race for the last use; drop the pair so the booking stays coupon-free
		if _, err := tx.Coupons().DeleteBookingCoupon(ctx, booking.ID, coupon.ID); err != nil {
			return nil, err
		}
		return nil, &models.CouponRejection{Code: coupon.Code, Reason: models.ErrCouponLimitExceeded}
	}

	total := booking.OriginalAmount - discount
	updated, err := tx.Bookings().UpdateAmounts(ctx, booking.ID, discount, total)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("%w: booking %s is no longer pending", models.ErrInvalidTransition, booking.ID)
	}

	booking.DiscountAmount = discount
	booking.TotalAmount = total

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"coupon_code": coupon.Code,
		"discount":    discount,
	}).Info("Coupon applied")

	coupon.UsageCount++
	return &models.AppliedCoupon{Coupon: coupon, BookingCoupon: bc}, nil
}

// Revoke undoes the application of code on a booking in its own transaction.
// It is a no-op when the coupon is not applied to the booking.
func (s *CouponService) Revoke(ctx context.Context, bookingID uuid.UUID, code string) error {
	return s.uow.WithinTx(ctx, func(tx repository.Store) error {
		coupon, err := tx.Coupons().GetByCode(ctx, s.codes.Sanitize(code))
		if err != nil {
			return err
		}
		if coupon == nil {
			return nil
		}
		_, err = s.revokePairTx(ctx, tx, bookingID, coupon.ID)
		return err
	})
}

// RevokeForBookingTx undoes whatever coupon is applied to the booking
func (s *CouponService) RevokeForBookingTx(ctx context.Context, tx repository.Store, bookingID uuid.UUID) (bool, error) {
	bc, err := tx.Coupons().GetBookingCoupon(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if bc == nil {
		return false, nil
	}
	return s.revokePairTx(ctx, tx, bookingID, bc.CouponID)
}

// revokePairTx deletes the pair first; only the caller that deleted it gives the use back
func (s *CouponService) revokePairTx(ctx context.Context, tx repository.Store, bookingID, couponID uuid.UUID) (bool, error) {
	deleted, err := tx.Coupons().DeleteBookingCoupon(ctx, bookingID, couponID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	decremented, err := tx.Coupons().DecrementUsage(ctx, couponID)
	if err != nil {
		return false, err
	}
	if !decremented {
		return false, fmt.Errorf("coupon %s usage count already zero while revoking booking %s", couponID, bookingID)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"coupon_id":  couponID,
	}).Info("Coupon usage revoked")

	return true, nil
}
