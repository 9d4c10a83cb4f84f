package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourhub/booking-backend/internal/models"
)

func TestBookingService_CreateBooking(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	combo := env.db.addCombo(1000000, 10, 10)
	env.db.addPercentCoupon("SAVE10", 10, 5)

	t.Run("Without coupon", func(t *testing.T) {
		result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
			UserID:   uuid.New(),
			ComboID:  combo.ID,
			Quantity: 2,
		})
		require.NoError(t, err)
		b := result.Booking
		assert.Equal(t, models.BookingStatusPending, b.Status)
		assert.Equal(t, int64(2000000), b.OriginalAmount)
		assert.Equal(t, int64(0), b.DiscountAmount)
		assert.Equal(t, int64(2000000), b.TotalAmount)
		assert.False(t, result.CouponApplied)
		assert.Nil(t, result.CouponRejection)
	})

	t.Run("With coupon", func(t *testing.T) {
		code := "save10"
		result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
			UserID:     uuid.New(),
			ComboID:    combo.ID,
			Quantity:   1,
			CouponCode: &code,
		})
		require.NoError(t, err)
		assert.True(t, result.CouponApplied)
		assert.Equal(t, int64(100000), result.Booking.DiscountAmount)
		assert.Equal(t, int64(900000), result.Booking.TotalAmount)

		stored := env.db.booking(result.Booking.ID)
		assert.Equal(t, int64(900000), stored.TotalAmount)
		assert.Equal(t, stored.OriginalAmount, stored.DiscountAmount+stored.TotalAmount)
	})

	t.Run("Unknown coupon degrades to full price", func(t *testing.T) {
		code := "NOPE"
		result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
			UserID:     uuid.New(),
			ComboID:    combo.ID,
			Quantity:   1,
			CouponCode: &code,
		})
		require.NoError(t, err)
		assert.False(t, result.CouponApplied)
		require.NotNil(t, result.CouponRejection)
		assert.Equal(t, "NOT_FOUND", result.CouponRejection.ReasonCode())
		assert.Equal(t, int64(1000000), result.Booking.TotalAmount)
	})

	t.Run("Invalid request", func(t *testing.T) {
		_, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
			UserID:   uuid.New(),
			ComboID:  combo.ID,
			Quantity: 0,
		})
		assert.Error(t, err)
	})

	t.Run("Capacity rejection persists nothing", func(t *testing.T) {
		before := env.db.combo(combo.ID).AvailableSlots
		_, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
			UserID:   uuid.New(),
			ComboID:  combo.ID,
			Quantity: before + 1,
		})
		var capErr *models.CapacityError
		require.True(t, errors.As(err, &capErr))
		assert.Equal(t, before, env.db.combo(combo.ID).AvailableSlots)
	})
}

func TestBookingService_CancelBooking(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	combo := env.db.addCombo(1000000, 10, 10)
	coupon := env.db.addPercentCoupon("SAVE10", 10, 5)
	userID := uuid.New()
	code := "SAVE10"

	result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
		UserID:     userID,
		ComboID:    combo.ID,
		Quantity:   3,
		CouponCode: &code,
	})
	require.NoError(t, err)
	bookingID := result.Booking.ID
	env.db.addPendingPayment(bookingID, result.Booking.TotalAmount, "1001")

	t.Run("Other user is forbidden", func(t *testing.T) {
		_, err := env.bookings.CancelBooking(ctx, bookingID, uuid.New(), "")
		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.Equal(t, models.BookingStatusPending, env.db.booking(bookingID).Status)
	})

	t.Run("Owner cancels and everything is restored", func(t *testing.T) {
		booking, err := env.bookings.CancelBooking(ctx, bookingID, userID, "")
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		require.NotNil(t, booking.CancelReason)
		assert.Equal(t, models.CancelReasonUser, *booking.CancelReason)

		assert.Equal(t, 10, env.db.combo(combo.ID).AvailableSlots)
		assert.Equal(t, 0, env.db.coupon(coupon.ID).UsageCount)
		assert.Equal(t, models.PaymentStatusCancelled, env.db.paymentByRef("1001").Status)
	})

	t.Run("Second cancel is an invalid transition", func(t *testing.T) {
		_, err := env.bookings.CancelBooking(ctx, bookingID, userID, "")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.Equal(t, 10, env.db.combo(combo.ID).AvailableSlots)
	})

	t.Run("Unknown booking", func(t *testing.T) {
		_, err := env.bookings.CancelBooking(ctx, uuid.New(), userID, "")
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})
}

func TestBookingService_CancelCompensationFailureRollsBack(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	combo := env.db.addCombo(1000, 10, 10)
	userID := uuid.New()

	result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
		UserID:   userID,
		ComboID:  combo.ID,
		Quantity: 2,
	})
	require.NoError(t, err)

	env.db.failIncrementSlots = errors.New("connection reset")

	_, err = env.bookings.CancelBooking(ctx, result.Booking.ID, userID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCompensationFailed)

	stored := env.db.booking(result.Booking.ID)
	assert.Equal(t, models.BookingStatusPending, stored.Status)
	assert.Nil(t, stored.SlotsReleasedAt)
	assert.Equal(t, 8, env.db.combo(combo.ID).AvailableSlots)
}

func TestBookingService_GetAndList(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	combo := env.db.addCombo(1000, 10, 10)
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
			UserID:   userID,
			ComboID:  combo.ID,
			Quantity: 1,
		})
		require.NoError(t, err)
		ids = append(ids, result.Booking.ID)
	}

	booking, err := env.bookings.GetBooking(ctx, ids[0], userID)
	require.NoError(t, err)
	assert.Equal(t, ids[0], booking.ID)

	_, err = env.bookings.GetBooking(ctx, ids[0], uuid.New())
	assert.ErrorIs(t, err, models.ErrForbidden)

	list, err := env.bookings.ListUserBookings(ctx, userID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = env.bookings.ListUserBookings(ctx, uuid.New(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
