package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tourhub/booking-backend/internal/models"
)

// Repositories return (nil, nil) when a row does not exist.
// Methods returning (bool, error) report whether their conditional
// statement matched a row; false is an expected outcome, not an error.

// ComboRepository owns service_combos.available_slots
type ComboRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceCombo, error)
	// DecrementSlots takes qty slots only if the combo is open and has enough left.
	// Returns the updated combo, or nil when the condition did not hold.
	DecrementSlots(ctx context.Context, id uuid.UUID, qty int) (*models.ServiceCombo, error)
	// IncrementSlots gives back qty slots, never exceeding capacity
	IncrementSlots(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

// CouponRepository owns coupons.usage_count and booking_coupons
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	// IncrementUsage bumps usage_count only while usage_count < usage_limit
	// and the coupon is active and unexpired at now.
	IncrementUsage(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// DecrementUsage lowers usage_count only while it is above zero
	DecrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
	// InsertBookingCoupon returns false when the (booking, coupon) pair already exists
	InsertBookingCoupon(ctx context.Context, bc *models.BookingCoupon) (bool, error)
	DeleteBookingCoupon(ctx context.Context, bookingID, couponID uuid.UUID) (bool, error)
	GetBookingCoupon(ctx context.Context, bookingID uuid.UUID) (*models.BookingCoupon, error)
}

// BookingRepository owns bookings
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	// GetForUpdate reads a booking and row-locks it until the transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error)
	// UpdateAmounts rewrites the totals of a pending booking
	UpdateAmounts(ctx context.Context, id uuid.UUID, discount, total int64) (bool, error)
	// TransitionStatus moves from -> to; false means the booking was not in from
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, reason *string) (bool, error)
	// MarkSlotsReleased sets the release marker once; false means already released
	MarkSlotsReleased(ctx context.Context, id uuid.UUID) (bool, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)
}

// PaymentRepository owns payments
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByOrderReference(ctx context.Context, orderReference string) (*models.Payment, error)
	GetPendingByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	SetCheckoutDetails(ctx context.Context, id uuid.UUID, linkID, checkoutURL string) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus, reason *string) (bool, error)
	// CancelPendingForBooking cancels every pending payment of a booking and returns how many
	CancelPendingForBooking(ctx context.Context, bookingID uuid.UUID, reason string) (int64, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payment, error)
}

// PaymentAuditRepository appends to the immutable payment audit log
type PaymentAuditRepository interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	ListByOrderReference(ctx context.Context, orderReference string) ([]*models.PaymentAudit, error)
}

// Store groups the repositories bound to one connection or transaction
type Store interface {
	Combos() ComboRepository
	Coupons() CouponRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	PaymentAudits() PaymentAuditRepository
}

// UnitOfWork runs a group of repository calls atomically.
// fn's Store is bound to the transaction; returning an error rolls it back.
type UnitOfWork interface {
	Store() Store
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
