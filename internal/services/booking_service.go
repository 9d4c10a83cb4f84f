package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/repository"
)

// BookingService owns the booking state machine: pending -> confirmed | cancelled.
// Confirmed and cancelled are terminal.
type BookingService struct {
	uow       repository.UnitOfWork
	inventory *InventoryService
	coupons   *CouponService
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	uow repository.UnitOfWork,
	inventory *InventoryService,
	coupons *CouponService,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		uow:       uow,
		inventory: inventory,
		coupons:   coupons,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBooking reserves slots, creates a pending booking and applies the
// optional coupon in one transaction. Nothing is persisted unless all of it
// commits. A rejected coupon does not fail the booking; it proceeds at full
// price and the rejection is reported in the result.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.CreateBookingRequest) (*models.BookingResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &models.BookingResult{}

	err := s.uow.WithinTx(ctx, func(tx repository.Store) error {
		token, err := s.inventory.ReserveTx(ctx, tx, req.ComboID, req.Quantity)
		if err != nil {
			return err
		}

		now := s.now()
		original := token.Price * int64(req.Quantity)
		booking := &models.Booking{
			ID:             uuid.New(),
			UserID:         req.UserID,
			ComboID:        req.ComboID,
			Quantity:       req.Quantity,
			OriginalAmount: original,
			DiscountAmount: 0,
			TotalAmount:    original,
			Status:         models.BookingStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}

		if req.CouponCode != nil && strings.TrimSpace(*req.CouponCode) != "" {
			_, err := s.coupons.ApplyTx(ctx, tx, *req.CouponCode, booking)
			var rejection *models.CouponRejection
			switch {
			case errors.As(err, &rejection):
				result.CouponRejection = rejection
			case err != nil:
				return err
			default:
				result.CouponApplied = true
			}
		}

		result.Booking = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"booking_id":     result.Booking.ID,
		"user_id":        result.Booking.UserID,
		"combo_id":       result.Booking.ComboID,
		"quantity":       result.Booking.Quantity,
		"total_amount":   result.Booking.TotalAmount,
		"coupon_applied": result.CouponApplied,
	}
	if result.CouponRejection != nil {
		fields["coupon_rejection"] = result.CouponRejection.ReasonCode()
	}
	s.logger.WithFields(fields).Info("Booking created")

	return result, nil
}

// ConfirmTx moves a pending booking to confirmed.
// Returns false when the booking is no longer pending.
func (s *BookingService) ConfirmTx(ctx context.Context, tx repository.Store, booking *models.Booking) (bool, error) {
	ok, err := tx.Bookings().TransitionStatus(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusConfirmed, nil)
	if err != nil || !ok {
		return false, err
	}

	now := s.now()
	booking.Status = models.BookingStatusConfirmed
	booking.ConfirmedAt = &now
	booking.UpdatedAt = now
	return true, nil
}

// CancelTx moves a pending booking to cancelled and compensates in the same
// transaction: slots go back to the combo and the coupon use is revoked.
// A booking that already left pending yields ErrInvalidTransition. A failed
// compensation step yields an error wrapping ErrCompensationFailed.
func (s *BookingService) CancelTx(ctx context.Context, tx repository.Store, booking *models.Booking, reason string) error {
	ok, err := tx.Bookings().TransitionStatus(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusCancelled, &reason)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: booking %s is not pending", models.ErrInvalidTransition, booking.ID)
	}

	if _, err := s.inventory.ReleaseTx(ctx, tx, booking); err != nil {
		return fmt.Errorf("%w: release slots for booking %s: %v", models.ErrCompensationFailed, booking.ID, err)
	}

	if _, err := s.coupons.RevokeForBookingTx(ctx, tx, booking.ID); err != nil {
		return fmt.Errorf("%w: revoke coupon for booking %s: %v", models.ErrCompensationFailed, booking.ID, err)
	}

	now := s.now()
	booking.Status = models.BookingStatusCancelled
	booking.CancelReason = &reason
	booking.CancelledAt = &now
	booking.SlotsReleasedAt = &now
	booking.UpdatedAt = now
	return nil
}

// CancelBooking cancels a pending booking on behalf of its owner.
// Any pending payment of the booking is cancelled with it.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string) (*models.Booking, error) {
	if reason == "" {
		reason = models.CancelReasonUser
	}

	var booking *models.Booking
	err := s.uow.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		booking, err = tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return models.ErrBookingNotFound
		}
		if booking.UserID != userID {
			return models.ErrForbidden
		}

		if err := s.CancelTx(ctx, tx, booking, reason); err != nil {
			return err
		}

		_, err = tx.Payments().CancelPendingForBooking(ctx, booking.ID, reason)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrCompensationFailed) {
			alertCompensationFailure(s.logger, err, logrus.Fields{
				"booking_id": bookingID,
				"operation":  "cancel_booking",
			})
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"user_id":    userID,
		"reason":     reason,
	}).Info("Booking cancelled")

	return booking, nil
}

// GetBooking returns a booking owned by userID
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID uuid.UUID) (*models.Booking, error) {
	booking, err := s.uow.Store().Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, models.ErrForbidden
	}
	return booking, nil
}

// ListUserBookings returns a page of the user's bookings, newest first
func (s *BookingService) ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.uow.Store().Bookings().ListByUser(ctx, userID, limit, offset)
}

// alertCompensationFailure logs a failed compensation at error level with an
// alert flag so it pages someone. The error is still returned to the caller.
func alertCompensationFailure(logger *logrus.Logger, err error, fields logrus.Fields) {
	logger.WithError(err).WithFields(fields).WithFields(logrus.Fields{
		"alert":      true,
		"alert_type": "compensation_failed",
	}).Error("Compensation failed; inventory or coupon usage may be inconsistent")
}
