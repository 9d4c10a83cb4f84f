package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the payment record state
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal returns true once the payment left pending
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// PaymentMethodGateway is the only method currently issued
const PaymentMethodGateway = "payment_link"

// Payment is the authoritative payment record for a booking.
// OrderReference is the order code sent to the gateway (column transaction_id).
type Payment struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	BookingID      uuid.UUID     `json:"booking_id" db:"booking_id"`
	Amount         int64         `json:"amount" db:"amount"`
	Method         string        `json:"method" db:"method"`
	Status         PaymentStatus `json:"status" db:"status"`
	OrderReference string        `json:"order_reference" db:"transaction_id"`
	GatewayLinkID  *string       `json:"gateway_link_id,omitempty" db:"gateway_link_id"`
	CheckoutURL    *string       `json:"checkout_url,omitempty" db:"checkout_url"`
	FailureReason  *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// PaymentEventStatus is the normalised status carried by a gateway event
type PaymentEventStatus string

const (
	PaymentEventStatusSuccess   PaymentEventStatus = "success"
	PaymentEventStatusFailed    PaymentEventStatus = "failed"
	PaymentEventStatusCancelled PaymentEventStatus = "cancelled"
	PaymentEventStatusPending   PaymentEventStatus = "pending"
)

// IsSuccess returns true for a successful payment event
func (s PaymentEventStatus) IsSuccess() bool {
	return s == PaymentEventStatusSuccess
}

// IsFailure returns true for failed or cancelled events
func (s PaymentEventStatus) IsFailure() bool {
	return s == PaymentEventStatusFailed || s == PaymentEventStatusCancelled
}

// PaymentStatusFor maps a failure event to the payment status it produces
func (s PaymentEventStatus) PaymentStatusFor() PaymentStatus {
	switch s {
	case PaymentEventStatusSuccess:
		return PaymentStatusCompleted
	case PaymentEventStatusCancelled:
		return PaymentStatusCancelled
	default:
		return PaymentStatusFailed
	}
}

// VerifiedEvent is a callback whose signature checked out
type VerifiedEvent struct {
	OrderReference       string             `json:"order_reference"`
	Status               PaymentEventStatus `json:"status"`
	Amount               *int64             `json:"amount,omitempty"`
	GatewayTransactionID *string            `json:"gateway_transaction_id,omitempty"`
	GatewayCode          string             `json:"gateway_code"`
}

// CheckoutSession is handed to the client for redirect
type CheckoutSession struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	BookingID      uuid.UUID `json:"booking_id"`
	OrderReference string    `json:"order_reference"`
	Amount         int64     `json:"amount"`
	CheckoutURL    string    `json:"checkout_url"`
	Reused         bool      `json:"reused"`
}

// GatewayStatus is the provider's view of an order, returned by status polling
type GatewayStatus struct {
	OrderReference string             `json:"order_reference"`
	Status         PaymentEventStatus `json:"status"`
	RawStatus      string             `json:"raw_status"`
	Amount         int64              `json:"amount"`
}

// PaymentReturnResponse is shown when the user lands back from the gateway
type PaymentReturnResponse struct {
	OrderReference string        `json:"order_reference"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	BookingID      uuid.UUID     `json:"booking_id"`
	BookingStatus  BookingStatus `json:"booking_status"`
}
