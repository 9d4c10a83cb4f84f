package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourhub/booking-backend/internal/models"
)

const comboColumns = `id, host_id, name, price, capacity, available_slots, status, created_at, updated_at`

// ComboRepository handles service combo inventory
type ComboRepository struct {
	db sqlx.ExtContext
}

// NewComboRepository creates a combo repository on a pool or transaction
func NewComboRepository(db sqlx.ExtContext) *ComboRepository {
	return &ComboRepository{db: db}
}

// GetByID retrieves a combo by ID
func (r *ComboRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceCombo, error) {
	var combo models.ServiceCombo
	query := `SELECT ` + comboColumns + ` FROM service_combos WHERE id = $1`

	err := sqlx.GetContext(ctx, r.db, &combo, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get service combo: %w", err)
	}

	return &combo, nil
}

// DecrementSlots is a compare-and-decrement: the row is only touched while
// the combo is open and has at least qty slots left.
func (r *ComboRepository) DecrementSlots(ctx context.Context, id uuid.UUID, qty int) (*models.ServiceCombo, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	var combo models.ServiceCombo
	query := `
		UPDATE service_combos
		SET available_slots = available_slots - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'open'
		  AND available_slots >= $2
		RETURNING ` + comboColumns

	err := sqlx.GetContext(ctx, r.db, &combo, query, id, qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decrement slots: %w", err)
	}

	return &combo, nil
}

// IncrementSlots returns qty slots, clamped to the combo capacity
func (r *ComboRepository) IncrementSlots(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	query := `
		UPDATE service_combos
		SET available_slots = LEAST(capacity, available_slots + $2),
		    updated_at = NOW()
		WHERE id = $1`

	return execConditional(ctx, r.db, "increment slots", query, id, qty)
}
