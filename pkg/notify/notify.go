// Package notify delivers booking lifecycle events to downstream consumers
// (email, push, analytics). Delivery is best effort.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the booking events exchange
const (
	RoutingBookingConfirmed = "booking.confirmed"
	RoutingBookingCancelled = "booking.cancelled"
)

// BookingEvent is the message body for booking lifecycle notifications
type BookingEvent struct {
	Event       string    `json:"event"`
	BookingID   uuid.UUID `json:"booking_id"`
	UserID      uuid.UUID `json:"user_id"`
	ComboID     uuid.UUID `json:"combo_id"`
	Quantity    int       `json:"quantity"`
	TotalAmount int64     `json:"total_amount"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher sends an event under a routing key
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event BookingEvent) error
	Close() error
}
