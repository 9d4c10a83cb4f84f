package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourhub/booking-backend/internal/models"
)

// PaymentAuditRepository appends payment audit entries
type PaymentAuditRepository struct {
	db sqlx.ExtContext
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db sqlx.ExtContext) *PaymentAuditRepository {
	return &PaymentAuditRepository{db: db}
}

// Log creates a new payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, payment_id, order_reference,
			event_type, event_source, outcome,
			expected_amount, received_amount, amounts_match,
			payment_status, gateway_transaction_id,
			request_payload, response_payload, raw_body,
			http_status_code, http_method, endpoint_url,
			error_message, error_code, processing_time_ms,
			ip_address, user_agent, device_info,
			created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12,
			$13, $14, $15,
			$16, $17, $18,
			$19, $20, $21,
			$22, $23, $24,
			$25
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.PaymentID, audit.OrderReference,
		audit.EventType, audit.EventSource, audit.Outcome,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.PaymentStatus, audit.GatewayTransactionID,
		audit.RequestPayload, audit.ResponsePayload, audit.RawBody,
		audit.HTTPStatusCode, audit.HTTPMethod, audit.EndpointURL,
		audit.ErrorMessage, audit.ErrorCode, audit.ProcessingTimeMs,
		audit.IPAddress, audit.UserAgent, audit.DeviceInfo,
		audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	return nil
}

// ListByOrderReference retrieves all audit entries for an order, oldest first
func (r *PaymentAuditRepository) ListByOrderReference(ctx context.Context, orderReference string) ([]*models.PaymentAudit, error) {
	audits := []*models.PaymentAudit{}
	query := `
		SELECT * FROM payment_audits
		WHERE order_reference = $1
		ORDER BY created_at ASC`

	if err := sqlx.SelectContext(ctx, r.db, &audits, query, orderReference); err != nil {
		return nil, fmt.Errorf("failed to get audits by order reference: %w", err)
	}

	return audits, nil
}
