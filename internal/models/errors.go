package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Domain errors. Expected outcomes (capacity, coupon rejections, state races)
// are returned as these values so callers branch with errors.Is / errors.As.
var (
	ErrComboNotFound        = errors.New("service combo not found")
	ErrComboNotOpen         = errors.New("service combo is not open for booking")
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	ErrCouponNotFound          = errors.New("coupon not found")
	ErrCouponInactive          = errors.New("coupon is inactive")
	ErrCouponExpired           = errors.New("coupon has expired")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	ErrCouponScopeMismatch     = errors.New("coupon does not apply to this service combo")
	ErrCouponAlreadyApplied    = errors.New("coupon already applied to this booking")
	ErrCouponLimitExceeded     = errors.New("coupon usage limit exceeded while applying")

	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking state transition")
	ErrForbidden         = errors.New("booking belongs to another user")

	ErrPaymentNotFound    = errors.New("payment not found")
	ErrSignatureInvalid   = errors.New("payment callback signature invalid")
	ErrInvalidCallback    = errors.New("invalid payment callback payload")
	ErrGatewayError       = errors.New("payment gateway error")
	ErrCheckoutInProgress = errors.New("checkout already in progress for this booking")
	ErrCompensationFailed = errors.New("compensation failed")
)

// CapacityError reports a rejected reservation
type CapacityError struct {
	ComboID   uuid.UUID
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for combo %s: requested %d, available %d", e.ComboID, e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// CouponRejection carries the reason a coupon could not be used
type CouponRejection struct {
	Code   string
	Reason error
}

func (e *CouponRejection) Error() string {
	return fmt.Sprintf("coupon %q rejected: %v", e.Code, e.Reason)
}

func (e *CouponRejection) Unwrap() error {
	return e.Reason
}

// ReasonCode returns a stable machine-readable code for API responses
func (e *CouponRejection) ReasonCode() string {
	switch {
	case errors.Is(e.Reason, ErrCouponNotFound):
		return "NOT_FOUND"
	case errors.Is(e.Reason, ErrCouponInactive):
		return "INACTIVE"
	case errors.Is(e.Reason, ErrCouponExpired):
		return "EXPIRED"
	case errors.Is(e.Reason, ErrCouponUsageLimitReached), errors.Is(e.Reason, ErrCouponLimitExceeded):
		return "USAGE_LIMIT_REACHED"
	case errors.Is(e.Reason, ErrCouponScopeMismatch):
		return "SCOPE_MISMATCH"
	case errors.Is(e.Reason, ErrCouponAlreadyApplied):
		return "ALREADY_APPLIED"
	default:
		return "INVALID"
	}
}

// GatewayError represents a failed call to the payment provider
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error (http %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return ErrGatewayError
}
