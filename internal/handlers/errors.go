package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
)

// respondError maps domain errors onto HTTP responses.
// Anything unrecognised is logged and reported as a 500 without internal detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, errCode, code := http.StatusInternalServerError, "internal_error", "INTERNAL_ERROR"
	message := "An unexpected error occurred"

	var (
		capErr       *models.CapacityError
		rejection    *models.CouponRejection
		gatewayError *models.GatewayError
	)

	switch {
	case errors.As(err, &capErr):
		status, errCode, code, message = http.StatusConflict, "insufficient_capacity", "INSUFFICIENT_CAPACITY", capErr.Error()
	case errors.Is(err, models.ErrComboNotFound):
		status, errCode, code, message = http.StatusNotFound, "not_found", "COMBO_NOT_FOUND", "Service combo not found"
	case errors.Is(err, models.ErrComboNotOpen):
		status, errCode, code, message = http.StatusConflict, "combo_not_open", "COMBO_NOT_OPEN", "Service combo is not open for booking"
	case errors.Is(err, models.ErrBookingNotFound):
		status, errCode, code, message = http.StatusNotFound, "not_found", "BOOKING_NOT_FOUND", "Booking not found"
	case errors.Is(err, models.ErrPaymentNotFound):
		status, errCode, code, message = http.StatusNotFound, "not_found", "PAYMENT_NOT_FOUND", "Payment not found"
	case errors.Is(err, models.ErrForbidden):
		status, errCode, code, message = http.StatusForbidden, "forbidden", "FORBIDDEN", "You don't have permission to access this booking"
	case errors.Is(err, models.ErrCompensationFailed):
		// Checked before ErrInvalidTransition: it may wrap one
		logger.WithError(err).Error("Request failed during compensation")
		status, errCode, code, message = http.StatusInternalServerError, "internal_error", "COMPENSATION_FAILED", "The operation could not be completed. Please retry."
	case errors.Is(err, models.ErrCheckoutInProgress):
		status, errCode, code, message = http.StatusConflict, "checkout_in_progress", "CHECKOUT_IN_PROGRESS", "A checkout for this booking is being created. Please retry shortly."
	case errors.Is(err, models.ErrInvalidTransition):
		status, errCode, code, message = http.StatusConflict, "invalid_transition", "INVALID_TRANSITION", "Booking is no longer in a state that allows this operation"
	case errors.As(err, &rejection):
		status, errCode, code, message = http.StatusUnprocessableEntity, "coupon_rejected", "COUPON_"+rejection.ReasonCode(), rejection.Error()
	case errors.Is(err, models.ErrSignatureInvalid):
		status, errCode, code, message = http.StatusUnauthorized, "unauthorized", "SIGNATURE_INVALID", "Callback signature is invalid"
	case errors.Is(err, models.ErrInvalidCallback):
		status, errCode, code, message = http.StatusBadRequest, "invalid_request", "INVALID_PAYLOAD", "Callback payload is malformed"
	case errors.As(err, &gatewayError):
		logger.WithError(err).Warn("Payment gateway call failed")
		status, errCode, code, message = http.StatusBadGateway, "gateway_error", "GATEWAY_ERROR", "Payment provider is unavailable. Please retry."
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled request error")
	}

	c.JSON(status, models.ErrorResponse{
		Error:   errCode,
		Message: message,
		Code:    code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: message,
		Code:    "INVALID_REQUEST",
	})
}
