package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/middleware"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/utils"
)

// BookingCoordinator places, pays for and cancels bookings
type BookingCoordinator interface {
	PlaceBooking(ctx context.Context, req *models.CreateBookingRequest, meta models.RequestMeta) (*models.CreateBookingResponse, error)
	CreateCheckout(ctx context.Context, bookingID, userID uuid.UUID, meta models.RequestMeta) (*models.CheckoutSession, error)
	CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string) (*models.Booking, error)
}

// BookingReader serves the user's own bookings
type BookingReader interface {
	GetBooking(ctx context.Context, bookingID, userID uuid.UUID) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error)
}

// BookingHandler handles customer booking operations
type BookingHandler struct {
	coordinator BookingCoordinator
	bookings    BookingReader
	logger      *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(coordinator BookingCoordinator, bookings BookingReader, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		coordinator: coordinator,
		bookings:    bookings,
		logger:      logger,
	}
}

// CreateBooking reserves slots, applies an optional coupon and opens checkout
// @Summary Create a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.CreateBookingResponse
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 404 {object} models.ErrorResponse "Combo not found"
// @Failure 409 {object} models.ErrorResponse "Insufficient capacity or combo closed"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Unauthorized"})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.UserID = userCtx.UserID

	resp, err := h.coordinator.PlaceBooking(c.Request.Context(), &req, utils.GetRequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id":     resp.BookingID,
		"user_id":        userCtx.UserID,
		"combo_id":       req.ComboID,
		"quantity":       req.Quantity,
		"total_amount":   resp.TotalAmount,
		"coupon_applied": resp.CouponApplied,
	}).Info("Booking created")

	c.JSON(http.StatusCreated, resp)
}

// ListBookings returns the caller's bookings, newest first
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} models.BookingListResponse
// @Security BearerAuth
// @Router /api/v1/bookings [get]
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	bookings, err := h.bookings.ListUserBookings(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}

	c.JSON(http.StatusOK, models.BookingListResponse{
		Bookings: bookings,
		Limit:    limit,
		Offset:   offset,
	})
}

// GetBooking returns one of the caller's bookings
// @Summary Get booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, bookingID, ok := bookingRequestContext(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), bookingID, userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking cancels a pending booking and restores its slots and coupon use
// @Summary Cancel booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.CancelBookingRequest false "Cancel reason"
// @Success 200 {object} models.Booking
// @Failure 409 {object} models.ErrorResponse "Booking is not pending"
// @Security BearerAuth
// @Router /api/v1/bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, bookingID, ok := bookingRequestContext(c)
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	booking, err := h.coordinator.CancelBooking(c.Request.Context(), bookingID, userCtx.UserID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CreateCheckout opens or reuses the checkout session of a pending booking
// @Summary Create checkout session
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.CheckoutSession
// @Failure 409 {object} models.ErrorResponse "Booking is not pending"
// @Failure 502 {object} models.ErrorResponse "Payment provider unavailable"
// @Security BearerAuth
// @Router /api/v1/bookings/{id}/checkout [post]
func (h *BookingHandler) CreateCheckout(c *gin.Context) {
	userCtx, bookingID, ok := bookingRequestContext(c)
	if !ok {
		return
	}

	session, err := h.coordinator.CreateCheckout(c.Request.Context(), bookingID, userCtx.UserID, utils.GetRequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// bookingRequestContext resolves the caller and the :id path parameter,
// writing the error response itself when either is missing
func bookingRequestContext(c *gin.Context) (middleware.UserContext, uuid.UUID, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Unauthorized"})
		return middleware.UserContext{}, uuid.Nil, false
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid booking ID")
		return middleware.UserContext{}, uuid.Nil, false
	}

	return userCtx, bookingID, true
}
