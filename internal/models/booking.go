package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the booking state machine
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsTerminal returns true for confirmed and cancelled
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCancelled
}

// CanTransitionTo reports whether the state machine allows s -> next.
// Only pending has outgoing edges.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return s == BookingStatusPending && (next == BookingStatusConfirmed || next == BookingStatusCancelled)
}

// Cancellation reasons stored on the booking
const (
	CancelReasonUser          = "user_cancelled"
	CancelReasonPaymentFailed = "payment_failed"
	CancelReasonPaymentCancel = "payment_cancelled"
	CancelReasonExpired       = "expired"
)

// Booking is a customer's reservation against a combo
type Booking struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	UserID          uuid.UUID     `json:"user_id" db:"user_id"`
	ComboID         uuid.UUID     `json:"combo_id" db:"combo_id"`
	Quantity        int           `json:"quantity" db:"quantity"`
	OriginalAmount  int64         `json:"original_amount" db:"original_amount"`
	DiscountAmount  int64         `json:"discount_amount" db:"discount_amount"`
	TotalAmount     int64         `json:"total_amount" db:"total_amount"`
	Status          BookingStatus `json:"status" db:"status"`
	CancelReason    *string       `json:"cancel_reason,omitempty" db:"cancel_reason"`
	SlotsReleasedAt *time.Time    `json:"slots_released_at,omitempty" db:"slots_released_at"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// IsPending returns true while the booking awaits payment
func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// ============================================================================
// REQUEST/RESPONSE DTOs
// ============================================================================

// CreateBookingRequest is the inbound booking-creation payload.
// UserID is taken from the auth context, never from the body.
type CreateBookingRequest struct {
	UserID     uuid.UUID `json:"-"`
	ComboID    uuid.UUID `json:"combo_id" binding:"required"`
	Quantity   int       `json:"quantity" binding:"required"`
	CouponCode *string   `json:"coupon_code,omitempty"`
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if r.ComboID == uuid.Nil {
		return errors.New("combo_id is required")
	}
	if r.Quantity <= 0 {
		return errors.New("quantity must be greater than zero")
	}
	if r.Quantity > 50 {
		return errors.New("maximum 50 slots can be booked at once")
	}
	return nil
}

// CancelBookingRequest is the body of the cancel endpoint
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BookingResult is what CreateBooking hands back to the coordinator
type BookingResult struct {
	Booking         *Booking
	CouponApplied   bool
	CouponRejection *CouponRejection
}

// CreateBookingResponse is returned after a booking is placed
type CreateBookingResponse struct {
	BookingID       uuid.UUID     `json:"booking_id"`
	Status          BookingStatus `json:"status"`
	Quantity        int           `json:"quantity"`
	OriginalAmount  int64         `json:"original_amount"`
	DiscountAmount  int64         `json:"discount_amount"`
	TotalAmount     int64         `json:"total_amount"`
	CouponApplied   bool          `json:"coupon_applied"`
	CouponRejection *string       `json:"coupon_rejection,omitempty"`
	OrderReference  *string       `json:"order_reference,omitempty"`
	CheckoutURL     *string       `json:"checkout_url,omitempty"`
	CheckoutError   *string       `json:"checkout_error,omitempty"`
	ExpiresAt       time.Time     `json:"expires_at"`
}

// BookingListResponse wraps a page of bookings
type BookingListResponse struct {
	Bookings []*Booking `json:"bookings"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}
