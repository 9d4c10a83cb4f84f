package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/repository"
)

// InventoryService is the ledger for service combo slots.
// All slot mutations are conditional updates in the combo repository.
type InventoryService struct {
	uow    repository.UnitOfWork
	logger *logrus.Logger
	now    func() time.Time
}

// NewInventoryService creates a new inventory service
func NewInventoryService(uow repository.UnitOfWork, logger *logrus.Logger) *InventoryService {
	return &InventoryService{
		uow:    uow,
		logger: logger,
		now:    time.Now,
	}
}

// GetAvailability returns the current slot counter of a combo
func (s *InventoryService) GetAvailability(ctx context.Context, comboID uuid.UUID) (*models.ComboAvailabilityResponse, error) {
	combo, err := s.uow.Store().Combos().GetByID(ctx, comboID)
	if err != nil {
		return nil, err
	}
	if combo == nil {
		return nil, models.ErrComboNotFound
	}

	return &models.ComboAvailabilityResponse{
		ID:             combo.ID,
		Name:           combo.Name,
		Price:          combo.Price,
		Capacity:       combo.Capacity,
		AvailableSlots: combo.AvailableSlots,
		Status:         combo.Status,
	}, nil
}

// TryReserve takes qty slots in its own statement
func (s *InventoryService) TryReserve(ctx context.Context, comboID uuid.UUID, qty int) (*models.ReservationToken, error) {
	return s.ReserveTx(ctx, s.uow.Store(), comboID, qty)
}

// ReserveTx takes qty slots using the caller's transaction.
// A rejected reservation returns ErrComboNotFound, ErrComboNotOpen or a *CapacityError.
func (s *InventoryService) ReserveTx(ctx context.Context, tx repository.Store, comboID uuid.UUID, qty int) (*models.ReservationToken, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	combo, err := tx.Combos().DecrementSlots(ctx, comboID, qty)
	if err != nil {
		return nil, err
	}
	if combo == nil {
		return nil, s.rejection(ctx, tx, comboID, qty)
	}

	s.logger.WithFields(logrus.Fields{
		"combo_id":  comboID,
		"quantity":  qty,
		"remaining": combo.AvailableSlots,
	}).Debug("Slots reserved")

	return &models.ReservationToken{
		ComboID:    combo.ID,
		Quantity:   qty,
		Price:      combo.Price,
		Remaining:  combo.AvailableSlots,
		ReservedAt: s.now(),
	}, nil
}

// rejection explains why the conditional decrement matched nothing
func (s *InventoryService) rejection(ctx context.Context, tx repository.Store, comboID uuid.UUID, qty int) error {
	combo, err := tx.Combos().GetByID(ctx, comboID)
	if err != nil {
		return err
	}
	if combo == nil {
		return models.ErrComboNotFound
	}
	if !combo.IsOpen() {
		return models.ErrComboNotOpen
	}
	return &models.CapacityError{
		ComboID:   comboID,
		Requested: qty,
		Available: combo.AvailableSlots,
	}
}

// Release gives a booking's slots back in its own transaction
func (s *InventoryService) Release(ctx context.Context, booking *models.Booking) (bool, error) {
	var released bool
	err := s.uow.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		released, err = s.ReleaseTx(ctx, tx, booking)
		return err
	})
	return released, err
}

// ReleaseTx gives a booking's slots back exactly once. The booking's release
// marker is set in the same transaction as the increment, so a second call
// for the same booking is a no-op and returns false.
// Slots are returned regardless of the combo status, clamped to capacity.
func (s *InventoryService) ReleaseTx(ctx context.Context, tx repository.Store, booking *models.Booking) (bool, error) {
	marked, err := tx.Bookings().MarkSlotsReleased(ctx, booking.ID)
	if err != nil {
		return false, err
	}
	if !marked {
		s.logger.WithField("booking_id", booking.ID).Debug("Slots already released")
		return false, nil
	}

	ok, err := tx.Combos().IncrementSlots(ctx, booking.ComboID, booking.Quantity)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("service combo %s not found while releasing %d slots", booking.ComboID, booking.Quantity)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"combo_id":   booking.ComboID,
		"quantity":   booking.Quantity,
	}).Info("Slots released")

	return true, nil
}
