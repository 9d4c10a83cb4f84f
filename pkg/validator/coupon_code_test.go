package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouponCodeValidator_ValidCodes(t *testing.T) {
	validator := NewCouponCodeValidator()

	validCodes := []struct {
		input    string
		expected string
		name     string
	}{
		{"SAVE10", "SAVE10", "Already normalised"},
		{"save10", "SAVE10", "Lower case"},
		{"  Save10 ", "SAVE10", "Surrounding whitespace"},
		{"SUMMER 2025", "SUMMER2025", "Inner space"},
		{"tour_vip-01", "TOUR_VIP-01", "Underscore and dash"},
	}

	for _, tc := range validCodes {
		t.Run(tc.name, func(t *testing.T) {
			sanitized, err := validator.Validate(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sanitized)
		})
	}
}

func TestCouponCodeValidator_InvalidCodes(t *testing.T) {
	validator := NewCouponCodeValidator()

	invalidCodes := []struct {
		input       string
		expectedErr error
		name        string
	}{
		{"", ErrEmptyCouponCode, "Empty string"},
		{"   ", ErrEmptyCouponCode, "Whitespace only"},
		{"AB", ErrInvalidCouponLength, "Too short"},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456", ErrInvalidCouponLength, "Too long"},
		{"SAVE10%", ErrInvalidCouponFormat, "Percent sign"},
		{"GIẢM10", ErrInvalidCouponFormat, "Non-ASCII letter"},
	}

	for _, tc := range invalidCodes {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validator.Validate(tc.input)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.False(t, validator.IsValid(tc.input))
		})
	}
}
