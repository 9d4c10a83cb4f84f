package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/tourhub/booking-backend/internal/middleware"
	"github.com/tourhub/booking-backend/internal/models"
)

type mockCoordinator struct{ mock.Mock }

func (m *mockCoordinator) PlaceBooking(ctx context.Context, req *models.CreateBookingRequest, meta models.RequestMeta) (*models.CreateBookingResponse, error) {
	args := m.Called(ctx, req, meta)
	resp, _ := args.Get(0).(*models.CreateBookingResponse)
	return resp, args.Error(1)
}

func (m *mockCoordinator) CreateCheckout(ctx context.Context, bookingID, userID uuid.UUID, meta models.RequestMeta) (*models.CheckoutSession, error) {
	args := m.Called(ctx, bookingID, userID, meta)
	session, _ := args.Get(0).(*models.CheckoutSession)
	return session, args.Error(1)
}

func (m *mockCoordinator) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, userID, reason)
	booking, _ := args.Get(0).(*models.Booking)
	return booking, args.Error(1)
}

type mockBookingReader struct{ mock.Mock }

func (m *mockBookingReader) GetBooking(ctx context.Context, bookingID, userID uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, userID)
	booking, _ := args.Get(0).(*models.Booking)
	return booking, args.Error(1)
}

func (m *mockBookingReader) ListUserBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	args := m.Called(ctx, userID, limit, offset)
	bookings, _ := args.Get(0).([]*models.Booking)
	return bookings, args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) HandleCallback(ctx context.Context, rawBody []byte, signature string, meta models.RequestMeta) (*models.WebhookResponse, error) {
	args := m.Called(ctx, rawBody, signature, meta)
	resp, _ := args.Get(0).(*models.WebhookResponse)
	return resp, args.Error(1)
}

func (m *mockReconciler) PaymentReturn(ctx context.Context, orderReference string) (*models.PaymentReturnResponse, error) {
	args := m.Called(ctx, orderReference)
	resp, _ := args.Get(0).(*models.PaymentReturnResponse)
	return resp, args.Error(1)
}

type mockJobRunner struct{ mock.Mock }

func (m *mockJobRunner) GetJobStatus() map[string]interface{} {
	args := m.Called()
	status, _ := args.Get(0).(map[string]interface{})
	return status
}

func (m *mockJobRunner) RunExpireNow(ctx context.Context) (*models.ExpirySweepResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*models.ExpirySweepResult)
	return result, args.Error(1)
}

func (m *mockJobRunner) RunPollNow(ctx context.Context) (*models.PaymentPollResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*models.PaymentPollResult)
	return result, args.Error(1)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) GetAvailability(ctx context.Context, comboID uuid.UUID) (*models.ComboAvailabilityResponse, error) {
	args := m.Called(ctx, comboID)
	resp, _ := args.Get(0).(*models.ComboAvailabilityResponse)
	return resp, args.Error(1)
}

func (m *mockCatalog) Preview(ctx context.Context, req *models.ValidateCouponRequest) (*models.ValidateCouponResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.ValidateCouponResponse)
	return resp, args.Error(1)
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// asUser simulates AuthMiddleware for routes under test
func asUser(userID uuid.UUID, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, middleware.UserContext{UserID: userID, Roles: roles})
		c.Next()
	}
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}
