package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourhub/booking-backend/internal/models"
)

const bookingColumns = `id, user_id, combo_id, quantity, original_amount, discount_amount, total_amount,
	status, cancel_reason, slots_released_at, confirmed_at, cancelled_at, created_at, updated_at`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db sqlx.ExtContext
}

// NewBookingRepository creates a booking repository on a pool or transaction
func NewBookingRepository(db sqlx.ExtContext) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a booking
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}

	query := `
		INSERT INTO bookings (
			id, user_id, combo_id, quantity,
			original_amount, discount_amount, total_amount,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.ComboID, booking.Quantity,
		booking.OriginalAmount, booking.DiscountAmount, booking.TotalAmount,
		booking.Status,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := sqlx.GetContext(ctx, r.db, &booking, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// GetForUpdate retrieves a booking and locks its row; only meaningful inside a transaction
func (r *BookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	err := sqlx.GetContext(ctx, r.db, &booking, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	return &booking, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, nil
}

// UpdateAmounts rewrites discount and total while the booking is pending
func (r *BookingRepository) UpdateAmounts(ctx context.Context, id uuid.UUID, discount, total int64) (bool, error) {
	query := `
		UPDATE bookings
		SET discount_amount = $2,
		    total_amount = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	return execConditional(ctx, r.db, "update booking amounts", query, id, discount, total)
}

// TransitionStatus moves a booking from one status to another.
// The WHERE clause on the current status makes concurrent transitions race
// on the row: exactly one caller sees true.
func (r *BookingRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, reason *string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE bookings
		SET status = $3,
		    cancel_reason = COALESCE($4, cancel_reason),
		    confirmed_at = CASE WHEN $3 = 'confirmed' THEN NOW() ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN NOW() ELSE cancelled_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`

	return execConditional(ctx, r.db, "transition booking status", query, id, string(from), string(to), reason)
}

// MarkSlotsReleased sets the release marker; false if it was already set
func (r *BookingRepository) MarkSlotsReleased(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE bookings
		SET slots_released_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND slots_released_at IS NULL`

	return execConditional(ctx, r.db, "mark slots released", query, id)
}

// ListPendingCreatedBefore returns the oldest pending bookings created before cutoff
func (r *BookingRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired pending bookings: %w", err)
	}

	return bookings, nil
}
