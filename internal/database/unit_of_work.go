package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tourhub/booking-backend/internal/repository"
)

// store binds every repository to the same pool or transaction
type store struct {
	combos   *ComboRepository
	coupons  *CouponRepository
	bookings *BookingRepository
	payments *PaymentRepository
	audits   *PaymentAuditRepository
}

func newStore(db sqlx.ExtContext) *store {
	return &store{
		combos:   NewComboRepository(db),
		coupons:  NewCouponRepository(db),
		bookings: NewBookingRepository(db),
		payments: NewPaymentRepository(db),
		audits:   NewPaymentAuditRepository(db),
	}
}

func (s *store) Combos() repository.ComboRepository               { return s.combos }
func (s *store) Coupons() repository.CouponRepository             { return s.coupons }
func (s *store) Bookings() repository.BookingRepository           { return s.bookings }
func (s *store) Payments() repository.PaymentRepository           { return s.payments }
func (s *store) PaymentAudits() repository.PaymentAuditRepository { return s.audits }

// UnitOfWork runs repository calls inside a single database transaction
type UnitOfWork struct {
	db    *sqlx.DB
	store *store
}

// NewUnitOfWork creates a unit of work over the connection pool
func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{
		db:    db,
		store: newStore(db),
	}
}

// Store returns repositories bound to the pool (autocommit)
func (u *UnitOfWork) Store() repository.Store {
	return u.store
}

// WithinTx runs fn in a transaction; fn's error or a panic rolls it back
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// execConditional runs a guarded statement and reports whether it matched a row
func execConditional(ctx context.Context, db sqlx.ExtContext, op, query string, args ...interface{}) (bool, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}
