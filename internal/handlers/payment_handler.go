package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/utils"
)

const maxWebhookBodyBytes = 64 << 10

// PaymentReconciler applies gateway callbacks and answers return-page lookups
type PaymentReconciler interface {
	HandleCallback(ctx context.Context, rawBody []byte, signature string, meta models.RequestMeta) (*models.WebhookResponse, error)
	PaymentReturn(ctx context.Context, orderReference string) (*models.PaymentReturnResponse, error)
}

// PaymentHandler handles the payment provider's server-to-server and redirect traffic
type PaymentHandler struct {
	reconciler      PaymentReconciler
	signatureHeader string
	logger          *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(reconciler PaymentReconciler, signatureHeader string, logger *logrus.Logger) *PaymentHandler {
	if signatureHeader == "" {
		signatureHeader = "X-Signature"
	}
	return &PaymentHandler{
		reconciler:      reconciler,
		signatureHeader: signatureHeader,
		logger:          logger,
	}
}

// Webhook receives a signed payment callback.
// The signature covers the exact bytes received, so the body is read raw.
// Every verified callback is acknowledged with 200 and its outcome, including
// unknown orders, so the provider stops retrying.
// @Summary Payment gateway callback
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} models.WebhookResponse
// @Failure 400 {object} models.ErrorResponse "Malformed payload"
// @Failure 401 {object} models.ErrorResponse "Signature invalid"
// @Router /api/v1/payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		badRequest(c, "Unable to read request body")
		return
	}
	if len(rawBody) == 0 {
		badRequest(c, "Request body is empty")
		return
	}

	resp, err := h.reconciler.HandleCallback(c.Request.Context(), rawBody, c.GetHeader(h.signatureHeader), utils.GetRequestMeta(c))
	if err != nil {
		if !errors.Is(err, models.ErrSignatureInvalid) {
			h.logger.WithError(err).Error("Payment callback processing failed")
		}
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"order_reference": resp.OrderReference,
		"outcome":         resp.Outcome,
	}).Info("Payment callback handled")

	c.JSON(http.StatusOK, resp)
}

// PaymentReturn reports booking and payment state after the customer is
// redirected back from the payment page. It never changes state.
// @Summary Payment return lookup
// @Tags Payments
// @Produce json
// @Param orderCode query string true "Order reference"
// @Success 200 {object} models.PaymentReturnResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/payments/return [get]
func (h *PaymentHandler) PaymentReturn(c *gin.Context) {
	orderReference := strings.TrimSpace(c.Query("orderCode"))
	if orderReference == "" {
		badRequest(c, "orderCode is required")
		return
	}

	resp, err := h.reconciler.PaymentReturn(c.Request.Context(), orderReference)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
