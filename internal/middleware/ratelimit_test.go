package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/tourhub/booking-backend/internal/config"
)

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		Prefix:         "rl:test",
		KeyStrategy:    "user_route",
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRateLimit_PassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		cfg  config.RateLimitConfig
		rdb  *redis.Client
	}{
		{
			name: "Disabled",
			cfg:  config.RateLimitConfig{Enabled: false},
			rdb:  redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
		},
		{
			name: "No redis client",
			cfg:  testRateLimitConfig(),
			rdb:  nil,
		},
		{
			name: "Redis unreachable fails open",
			cfg:  testRateLimitConfig(),
			rdb: redis.NewClient(&redis.Options{
				Addr:        "127.0.0.1:1",
				MaxRetries:  -1,
				DialTimeout: 100 * time.Millisecond,
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/bookings", RateLimit(tt.cfg, tt.rdb, quietLogger()), func(c *gin.Context) {
				c.JSON(http.StatusCreated, gin.H{"message": "created"})
			})

			for i := 0; i < 5; i++ {
				w := httptest.NewRecorder()
				router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bookings", nil))
				assert.Equal(t, http.StatusCreated, w.Code)
			}
		})
	}
}

func TestBuildRateKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()

	tests := []struct {
		strategy string
		withUser bool
		expected string
	}{
		{"ip", true, "rl:test:ip:192.0.2.1"},
		{"user", true, "rl:test:user:" + userID.String()},
		{"user", false, "rl:test:user:anon"},
		{"route", false, "rl:test:route:POST /bookings"},
		{"ip_user", true, "rl:test:ip:192.0.2.1:user:" + userID.String()},
		{"user_route", true, "rl:test:user:" + userID.String() + ":route:POST /bookings"},
		{"", false, "rl:test:ip:192.0.2.1:user:anon:route:POST /bookings"},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			cfg := testRateLimitConfig()
			cfg.KeyStrategy = tt.strategy

			var got string
			router := gin.New()
			router.POST("/bookings", func(c *gin.Context) {
				if tt.withUser {
					c.Set(UserContextKey, UserContext{UserID: userID})
				}
				got = buildRateKey(cfg, c)
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
			req.RemoteAddr = "192.0.2.1:4321"
			router.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.expected, got)
		})
	}
}
