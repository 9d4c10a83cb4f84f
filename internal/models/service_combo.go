package models

import (
	"time"

	"github.com/google/uuid"
)

// ComboStatus represents the sale status of a service combo
type ComboStatus string

const (
	ComboStatusOpen     ComboStatus = "open"
	ComboStatusClosed   ComboStatus = "closed"
	ComboStatusCanceled ComboStatus = "canceled"
)

// ServiceCombo is a bundled tour package with finite capacity.
// AvailableSlots stays within [0, Capacity].
type ServiceCombo struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	HostID         *uuid.UUID  `json:"host_id,omitempty" db:"host_id"`
	Name           string      `json:"name" db:"name"`
	Price          int64       `json:"price" db:"price"`
	Capacity       int         `json:"capacity" db:"capacity"`
	AvailableSlots int         `json:"available_slots" db:"available_slots"`
	Status         ComboStatus `json:"status" db:"status"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// IsOpen returns true if the combo accepts new reservations
func (c *ServiceCombo) IsOpen() bool {
	return c.Status == ComboStatusOpen
}

// ReservationToken proves that slots were taken from a combo.
// Price is the combo price at the moment of reservation.
type ReservationToken struct {
	ComboID    uuid.UUID `json:"combo_id"`
	Quantity   int       `json:"quantity"`
	Price      int64     `json:"price"`
	Remaining  int       `json:"remaining"`
	ReservedAt time.Time `json:"reserved_at"`
}

// ComboAvailabilityResponse is returned by the availability endpoint
type ComboAvailabilityResponse struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Price          int64       `json:"price"`
	Capacity       int         `json:"capacity"`
	AvailableSlots int         `json:"available_slots"`
	Status         ComboStatus `json:"status"`
}
