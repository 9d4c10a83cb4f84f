package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
)

// AvailabilityReader reports a combo's remaining slots
type AvailabilityReader interface {
	GetAvailability(ctx context.Context, comboID uuid.UUID) (*models.ComboAvailabilityResponse, error)
}

// CouponPreviewer checks a coupon without consuming it
type CouponPreviewer interface {
	Preview(ctx context.Context, req *models.ValidateCouponRequest) (*models.ValidateCouponResponse, error)
}

// CatalogHandler serves read-only combo and coupon lookups
type CatalogHandler struct {
	inventory AvailabilityReader
	coupons   CouponPreviewer
	logger    *logrus.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(inventory AvailabilityReader, coupons CouponPreviewer, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{
		inventory: inventory,
		coupons:   coupons,
		logger:    logger,
	}
}

// GetCombo returns price and remaining capacity for a service combo
// @Summary Get combo availability
// @Tags Combos
// @Produce json
// @Param id path string true "Combo ID"
// @Success 200 {object} models.ComboAvailabilityResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/combos/{id} [get]
func (h *CatalogHandler) GetCombo(c *gin.Context) {
	comboID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid combo ID")
		return
	}

	resp, err := h.inventory.GetAvailability(c.Request.Context(), comboID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ValidateCoupon previews the discount a coupon would give.
// Rejections are a normal 200 response with valid=false.
// @Summary Validate coupon
// @Tags Coupons
// @Accept json
// @Produce json
// @Param request body models.ValidateCouponRequest true "Coupon and amount"
// @Success 200 {object} models.ValidateCouponResponse
// @Security BearerAuth
// @Router /api/v1/coupons/validate [post]
func (h *CatalogHandler) ValidateCoupon(c *gin.Context) {
	var req models.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.coupons.Preview(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
