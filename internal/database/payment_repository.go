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

const paymentColumns = `id, booking_id, amount, method, status, transaction_id,
	gateway_link_id, checkout_url, failure_reason, created_at, updated_at`

// PaymentRepository handles payment records
type PaymentRepository struct {
	db sqlx.ExtContext
}

// NewPaymentRepository creates a payment repository on a pool or transaction
func NewPaymentRepository(db sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}

	query := `
		INSERT INTO payments (
			id, booking_id, amount, method, status, transaction_id,
			gateway_link_id, checkout_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		payment.ID, payment.BookingID, payment.Amount, payment.Method, payment.Status,
		payment.OrderReference, payment.GatewayLinkID, payment.CheckoutURL,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByOrderReference looks a payment up by the order code sent to the gateway
func (r *PaymentRepository) GetByOrderReference(ctx context.Context, orderReference string) (*models.Payment, error) {
	var payment models.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	err := sqlx.GetContext(ctx, r.db, &payment, query, orderReference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment by order reference: %w", err)
	}

	return &payment, nil
}

// GetPendingByBookingID returns the newest pending payment of a booking
func (r *PaymentRepository) GetPendingByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1`

	err := sqlx.GetContext(ctx, r.db, &payment, query, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending payment: %w", err)
	}

	return &payment, nil
}

// SetCheckoutDetails stores the gateway link once the provider answered
func (r *PaymentRepository) SetCheckoutDetails(ctx context.Context, id uuid.UUID, linkID, checkoutURL string) error {
	query := `
		UPDATE payments
		SET gateway_link_id = $2,
		    checkout_url = $3,
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, linkID, checkoutURL); err != nil {
		return fmt.Errorf("failed to set checkout details: %w", err)
	}

	return nil
}

// TransitionStatus moves a payment out of from; false means it was not in from.
// completed is terminal, so callers only ever pass from = pending.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus, reason *string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $3,
		    failure_reason = COALESCE($4, failure_reason),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`

	return execConditional(ctx, r.db, "transition payment status", query, id, string(from), string(to), reason)
}

// CancelPendingForBooking cancels every pending payment of a booking
func (r *PaymentRepository) CancelPendingForBooking(ctx context.Context, bookingID uuid.UUID, reason string) (int64, error) {
	query := `
		UPDATE payments
		SET status = 'cancelled',
		    failure_reason = $2,
		    updated_at = NOW()
		WHERE booking_id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, bookingID, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending payments: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows, nil
}

// ListPendingCreatedBefore returns the oldest pending payments created before cutoff
func (r *PaymentRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payment, error) {
	payments := []*models.Payment{}
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := sqlx.SelectContext(ctx, r.db, &payments, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	return payments, nil
}
