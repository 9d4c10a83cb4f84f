package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/database"
	"github.com/tourhub/booking-backend/internal/handlers"
	"github.com/tourhub/booking-backend/internal/middleware"
	"github.com/tourhub/booking-backend/internal/services"
	"github.com/tourhub/booking-backend/pkg/jwt"
	"github.com/tourhub/booking-backend/pkg/notify"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting TourHub Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db.DB.DB, logger); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Optional infrastructure: both degrade instead of blocking startup
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, rate limiting disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("Redis connection established")
		}
	}

	var publisher notify.Publisher = notify.NewLogPublisher(logger)
	if cfg.RabbitMQ.Enabled {
		amqpPublisher, err := notify.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, booking notifications will only be logged")
		} else {
			publisher = amqpPublisher
			logger.WithField("exchange", cfg.RabbitMQ.Exchange).Info("RabbitMQ publisher connected")
		}
	}
	defer publisher.Close()

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	uow := database.NewUnitOfWork(db.DB)
	auditService := services.NewPaymentAuditService(uow.Store().PaymentAudits(), logger)
	notificationService := services.NewNotificationService(publisher, logger)
	inventoryService := services.NewInventoryService(uow, logger)
	couponService := services.NewCouponService(uow, logger)
	bookingService := services.NewBookingService(uow, inventoryService, couponService, logger)
	gatewayService := services.NewPaymentGatewayService(&cfg.Payment, uow, auditService, logger)
	if !gatewayService.IsConfigured() {
		logger.Warn("Payment gateway credentials missing: bookings will be created without checkout sessions")
	}
	reconciliationService := services.NewReconciliationService(
		uow,
		bookingService,
		gatewayService,
		auditService,
		notificationService,
		&cfg.Booking,
		logger,
	)

	// Background reconciliation: cron schedule, or a plain ticker sweep
	cronService := services.NewCronService(reconciliationService, &cfg.Booking, logger)
	var expirationService *services.BookingExpirationService
	if cfg.Booking.CronEnabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		logger.Info("Cron service started - booking expiry and payment polling enabled")
	} else {
		expirationService = services.NewBookingExpirationService(reconciliationService, &cfg.Booking, logger)
		expirationService.Start()
	}

	logger.Info("Services initialized")

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, version)
	catalogHandler := handlers.NewCatalogHandler(inventoryService, couponService, logger)
	bookingHandler := handlers.NewBookingHandler(reconciliationService, bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(reconciliationService, cfg.Payment.SignatureHeader, logger)
	adminHandler := handlers.NewAdminHandler(cronService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthHandler.Health)

	rateLimit := middleware.RateLimit(cfg.RateLimit, redisClient, logger)
	auth := middleware.AuthMiddleware(jwtService)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/combos/:id", catalogHandler.GetCombo)
		v1.POST("/coupons/validate", auth, catalogHandler.ValidateCoupon)

		bookings := v1.Group("/bookings", auth)
		{
			bookings.POST("", rateLimit, bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/checkout", rateLimit, bookingHandler.CreateCheckout)
		}

		// Called by the payment provider; authenticated by the callback signature
		payments := v1.Group("/payments")
		{
			payments.POST("/webhook", paymentHandler.Webhook)
			payments.GET("/return", paymentHandler.PaymentReturn)
		}

		admin := v1.Group("/admin", auth, middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/jobs", adminHandler.GetJobs)
			admin.POST("/jobs/expire-bookings", adminHandler.ExpireBookings)
			admin.POST("/jobs/poll-payments", adminHandler.PollPayments)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop background jobs before the database goes away
	if cfg.Booking.CronEnabled {
		cronService.Stop()
	} else if expirationService != nil {
		expirationService.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Drain in-flight notifications
	notificationService.Wait()

	logger.Info("Server exited")
}

// requestLogger logs one line per request with latency and caller details
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
			fields["roles"] = userCtx.Roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}
