package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/middleware"
	"github.com/tourhub/booking-backend/internal/models"
)

// JobRunner exposes the background reconciliation jobs to operators
type JobRunner interface {
	GetJobStatus() map[string]interface{}
	RunExpireNow(ctx context.Context) (*models.ExpirySweepResult, error)
	RunPollNow(ctx context.Context) (*models.PaymentPollResult, error)
}

// AdminHandler handles admin-related HTTP requests
type AdminHandler struct {
	jobs   JobRunner
	logger *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(jobs JobRunner, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// GetJobs handles GET /api/v1/admin/jobs
func (h *AdminHandler) GetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

// ExpireBookings handles POST /api/v1/admin/jobs/expire-bookings
func (h *AdminHandler) ExpireBookings(c *gin.Context) {
	userCtx, _ := middleware.GetUserContext(c)

	result, err := h.jobs.RunExpireNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"admin_id": userCtx.UserID,
		"expired":  result.Expired,
		"failed":   result.Failed,
	}).Info("Expiry sweep triggered manually")

	c.JSON(http.StatusOK, gin.H{
		"message": "Expiry sweep completed",
		"result":  result,
	})
}

// PollPayments handles POST /api/v1/admin/jobs/poll-payments
func (h *AdminHandler) PollPayments(c *gin.Context) {
	userCtx, _ := middleware.GetUserContext(c)

	result, err := h.jobs.RunPollNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"admin_id":   userCtx.UserID,
		"checked":    result.Checked,
		"reconciled": result.Reconciled,
	}).Info("Payment poll triggered manually")

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment poll completed",
		"result":  result,
	})
}
