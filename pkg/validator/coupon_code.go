package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyCouponCode indicates the coupon code is empty
	ErrEmptyCouponCode = errors.New("coupon code cannot be empty")

	// ErrInvalidCouponLength indicates the code is shorter than 3 or longer than 32 characters
	ErrInvalidCouponLength = errors.New("coupon code must be between 3 and 32 characters")

	// ErrInvalidCouponFormat indicates the code contains unsupported characters
	ErrInvalidCouponFormat = errors.New("coupon code can only contain letters, digits, '-' and '_'")
)

const (
	minCouponLength = 3
	maxCouponLength = 32
)

// couponRegex matches normalised codes
var couponRegex = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// CouponCodeValidator handles coupon code normalisation
type CouponCodeValidator struct{}

// NewCouponCodeValidator creates a new coupon code validator instance
func NewCouponCodeValidator() *CouponCodeValidator {
	return &CouponCodeValidator{}
}

// Validate normalises a coupon code and checks its format.
// Accepts " save10 ", "SAVE10", "save 10"; returns "SAVE10".
func (v *CouponCodeValidator) Validate(code string) (string, error) {
	sanitized := v.Sanitize(code)
	if sanitized == "" {
		return "", ErrEmptyCouponCode
	}

	if len(sanitized) < minCouponLength || len(sanitized) > maxCouponLength {
		return "", ErrInvalidCouponLength
	}

	if !couponRegex.MatchString(sanitized) {
		return "", ErrInvalidCouponFormat
	}

	return sanitized, nil
}

// Sanitize removes whitespace and upper-cases the code
func (v *CouponCodeValidator) Sanitize(code string) string {
	code = strings.Join(strings.Fields(code), "")
	return strings.ToUpper(code)
}

// IsValid checks if a coupon code is well formed
func (v *CouponCodeValidator) IsValid(code string) bool {
	_, err := v.Validate(code)
	return err == nil
}
