package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/models"
)

// BookingExpirationService runs the pending-booking sweep on a ticker.
// It is used when the cron scheduler is disabled.
type BookingExpirationService struct {
	reconciler *ReconciliationService
	logger     *logrus.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	olderThan  time.Duration
}

// NewBookingExpirationService creates a new booking expiration service
func NewBookingExpirationService(
	reconciler *ReconciliationService,
	cfg *config.BookingConfig,
	logger *logrus.Logger,
) *BookingExpirationService {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &BookingExpirationService{
		reconciler: reconciler,
		logger:     logger,
		stopCh:     make(chan struct{}),
		interval:   interval,
		olderThan:  cfg.PendingExpiry,
	}
}

// Start begins the background expiration job
func (s *BookingExpirationService) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting booking expiration service")
	go s.run()
}

// Stop stops the background expiration job
func (s *BookingExpirationService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping booking expiration service")
		close(s.stopCh)
	})
}

func (s *BookingExpirationService) run() {
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.stopCh:
			s.logger.Info("Booking expiration service stopped")
			return
		}
	}
}

// RunOnce runs a single sweep
func (s *BookingExpirationService) RunOnce() *models.ExpirySweepResult {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	result, err := s.reconciler.ExpirePendingBookings(ctx, s.olderThan)
	if err != nil {
		s.logger.WithError(err).Error("Booking expiry sweep failed")
	}
	return result
}
