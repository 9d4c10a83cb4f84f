package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the log; used when RabbitMQ is disabled
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, routingKey string, event BookingEvent) error {
	p.logger.WithFields(logrus.Fields{
		"routing_key":  routingKey,
		"booking_id":   event.BookingID,
		"user_id":      event.UserID,
		"total_amount": event.TotalAmount,
		"reason":       event.Reason,
	}).Info("Booking notification")
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error {
	return nil
}
