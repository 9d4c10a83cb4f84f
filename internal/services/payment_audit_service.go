package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/repository"
	"github.com/tourhub/booking-backend/internal/utils"
)

// PaymentAuditService writes payment audit entries.
// Audit writes never fail the payment flow; errors are logged.
type PaymentAuditService struct {
	audits repository.PaymentAuditRepository
	logger *logrus.Logger
}

// NewPaymentAuditService creates a new payment audit service
func NewPaymentAuditService(audits repository.PaymentAuditRepository, logger *logrus.Logger) *PaymentAuditService {
	return &PaymentAuditService{
		audits: audits,
		logger: logger,
	}
}

// Record persists an audit entry
func (s *PaymentAuditService) Record(ctx context.Context, audit *models.PaymentAudit) {
	if s == nil || audit == nil {
		return
	}
	// Audit rows must land even if the request context was cancelled mid-flight
	if err := s.audits.Log(context.WithoutCancel(ctx), audit); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":      audit.EventType,
			"order_reference": stringValue(audit.OrderReference),
		}).Error("Failed to log payment audit")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")
}

// RecordWithMeta attaches caller IP and parsed user agent before persisting
func (s *PaymentAuditService) RecordWithMeta(ctx context.Context, audit *models.PaymentAudit, meta models.RequestMeta) {
	if s == nil || audit == nil {
		return
	}
	var device map[string]interface{}
	if meta.UserAgent != "" {
		device = utils.ParseUserAgent(meta.UserAgent).AsMap()
	}
	audit.SetMetadata(meta.IPAddress, meta.UserAgent, device)
	s.Record(ctx, audit)
}

// History returns the audit trail of an order
func (s *PaymentAuditService) History(ctx context.Context, orderReference string) ([]*models.PaymentAudit, error) {
	return s.audits.ListByOrderReference(ctx, orderReference)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
