package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/database"
	"github.com/tourhub/booking-backend/internal/services"
	"github.com/tourhub/booking-backend/pkg/notify"
)

// One-shot expiry sweep for operators: cancels pending bookings older than
// -older-than, restoring their slots and coupon uses.
func main() {
	var (
		dbURLFlag string
		olderThan time.Duration
		batchSize int
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.DurationVar(&olderThan, "older-than", 15*time.Minute, "expire pending bookings created before now minus this duration")
	flag.IntVar(&batchSize, "batch-size", 500, "maximum bookings processed in this run")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}
	if olderThan <= 0 {
		log.Fatal("-older-than must be positive")
	}

	// Build minimal config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}
	bookingCfg := config.BookingConfig{
		PendingExpiry:  olderThan,
		SweepBatchSize: batchSize,
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	uow := database.NewUnitOfWork(db.DB)
	audits := services.NewPaymentAuditService(uow.Store().PaymentAudits(), logger)
	notifier := services.NewNotificationService(notify.NewLogPublisher(logger), logger)
	inventory := services.NewInventoryService(uow, logger)
	coupons := services.NewCouponService(uow, logger)
	bookings := services.NewBookingService(uow, inventory, coupons, logger)
	gateway := services.NewPaymentGatewayService(&config.PaymentConfig{}, uow, audits, logger)
	reconciler := services.NewReconciliationService(uow, bookings, gateway, audits, notifier, &bookingCfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("Expiring pending bookings older than %s...\n", olderThan)

	result, err := reconciler.ExpirePendingBookings(ctx, olderThan)
	notifier.Wait()
	if err != nil {
		log.Fatalf("expiry sweep failed: %v", err)
	}

	fmt.Printf("Scanned: %d\n", result.Scanned)
	fmt.Printf("Expired: %d\n", result.Expired)
	fmt.Printf("Skipped: %d\n", result.Skipped)
	fmt.Printf("Failed:  %d\n", result.Failed)

	if result.Failed > 0 {
		os.Exit(1)
	}
}
