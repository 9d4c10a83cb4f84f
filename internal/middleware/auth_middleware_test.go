package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourhub/booking-backend/pkg/jwt"
)

const testSecret = "test-access-secret-key-123456789"

// newAuthRouter mirrors the server wiring: customer booking routes behind
// AuthMiddleware and the job endpoints behind the admin role.
func newAuthRouter(jwtService *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	bookings := router.Group("/api/v1/bookings", AuthMiddleware(jwtService))
	bookings.GET("", func(c *gin.Context) {
		userCtx := MustGetUserContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userCtx.UserID})
	})

	admin := router.Group("/api/v1/admin", AuthMiddleware(jwtService), RequireRole(RoleAdmin))
	admin.GET("/jobs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"running": true})
	})

	// RequireRole mounted without authentication in front of it
	router.GET("/api/v1/unguarded", RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func mustToken(t *testing.T, svc *jwt.Service, userID uuid.UUID, roles ...string) string {
	token, err := svc.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_BookingAndAdminRoutes(t *testing.T) {
	jwtService := jwt.NewService(testSecret, "tourhub-test", time.Hour)
	router := newAuthRouter(jwtService)

	customerID := uuid.New()
	customer := mustToken(t, jwtService, customerID, "customer")
	admin := mustToken(t, jwtService, uuid.New(), "customer", RoleAdmin)
	expired := mustToken(t, jwt.NewService(testSecret, "tourhub-test", -time.Minute), uuid.New(), "customer")
	wrongSecret := mustToken(t, jwt.NewService("another-secret-key", "tourhub-test", time.Hour), uuid.New(), "customer")
	wrongIssuer := mustToken(t, jwt.NewService(testSecret, "someone-else", time.Hour), uuid.New(), RoleAdmin)

	tests := []struct {
		name       string
		path       string
		authHeader string
		status     int
		body       string
	}{
		{"Customer lists own bookings", "/api/v1/bookings", "Bearer " + customer, http.StatusOK, customerID.String()},
		{"No header", "/api/v1/bookings", "", http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"Not a bearer token", "/api/v1/bookings", "Basic " + customer, http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"Empty bearer", "/api/v1/bookings", "Bearer ", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"Expired token", "/api/v1/bookings", "Bearer " + expired, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"Signed with another secret", "/api/v1/bookings", "Bearer " + wrongSecret, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"Issued by another service", "/api/v1/admin/jobs", "Bearer " + wrongIssuer, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"Customer on admin jobs", "/api/v1/admin/jobs", "Bearer " + customer, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
		{"Admin on admin jobs", "/api/v1/admin/jobs", "Bearer " + admin, http.StatusOK, "running"},
		{"Role check without auth", "/api/v1/unguarded", "", http.StatusUnauthorized, "MISSING_USER_CONTEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Contains(t, w.Body.String(), tt.body)
			}
		})
	}
}

func TestUserContext_HasRole(t *testing.T) {
	u := UserContext{UserID: uuid.New(), Roles: []string{"customer", RoleAdmin}}
	assert.True(t, u.HasRole(RoleAdmin))
	assert.True(t, u.HasRole("operator", "customer"))
	assert.False(t, u.HasRole("operator"))
	assert.False(t, UserContext{}.HasRole(RoleAdmin))
}

func TestGetUserContext_WrongType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(UserContextKey, "not a user context")

	userCtx, exists := GetUserContext(c)
	assert.False(t, exists)
	assert.Equal(t, UserContext{}, userCtx)
	assert.Panics(t, func() { MustGetUserContext(c) })
}
