package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/pkg/notify"
)

// NotificationService dispatches booking notifications fire-and-forget.
// It runs after the reconciliation committed; a failed publish is only logged.
type NotificationService struct {
	publisher notify.Publisher
	logger    *logrus.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewNotificationService creates a new notification service
func NewNotificationService(publisher notify.Publisher, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// NotifyBookingConfirmed publishes booking.confirmed in the background
func (s *NotificationService) NotifyBookingConfirmed(booking *models.Booking) {
	s.dispatch(notify.RoutingBookingConfirmed, booking, "")
}

// NotifyBookingCancelled publishes booking.cancelled in the background
func (s *NotificationService) NotifyBookingCancelled(booking *models.Booking, reason string) {
	s.dispatch(notify.RoutingBookingCancelled, booking, reason)
}

// Wait blocks until in-flight notifications finish (shutdown and tests)
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) dispatch(routingKey string, booking *models.Booking, reason string) {
	if s == nil || s.publisher == nil || booking == nil {
		return
	}

	event := notify.BookingEvent{
		Event:       routingKey,
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		ComboID:     booking.ComboID,
		Quantity:    booking.Quantity,
		TotalAmount: booking.TotalAmount,
		Reason:      reason,
		OccurredAt:  time.Now().UTC(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("panic", r).Error("Notification publisher panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"routing_key": routingKey,
				"booking_id":  booking.ID,
			}).Warn("Failed to publish booking notification")
		}
	}()
}
