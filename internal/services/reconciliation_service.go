package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/repository"
)

// errBookingNotPending rolls back a payment transition whose booking already left pending
var errBookingNotPending = errors.New("booking is no longer pending")

// ReconciliationService keeps bookings, payments, inventory and coupon usage
// consistent. It is the only place payment events change booking state.
type ReconciliationService struct {
	uow      repository.UnitOfWork
	bookings *BookingService
	gateway  *PaymentGatewayService
	audits   *PaymentAuditService
	notifier *NotificationService
	config   *config.BookingConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	uow repository.UnitOfWork,
	bookings *BookingService,
	gateway *PaymentGatewayService,
	audits *PaymentAuditService,
	notifier *NotificationService,
	cfg *config.BookingConfig,
	logger *logrus.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		uow:      uow,
		bookings: bookings,
		gateway:  gateway,
		audits:   audits,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// PlaceBooking creates a booking and opens its checkout session.
// A failed checkout does not undo the booking: it stays pending so the client
// can retry the checkout, and expires if it never gets paid.
func (s *ReconciliationService) PlaceBooking(ctx context.Context, req *models.CreateBookingRequest, meta models.RequestMeta) (*models.CreateBookingResponse, error) {
	result, err := s.bookings.CreateBooking(ctx, req)
	if err != nil {
		return nil, err
	}

	booking := result.Booking
	resp := &models.CreateBookingResponse{
		BookingID:      booking.ID,
		Status:         booking.Status,
		Quantity:       booking.Quantity,
		OriginalAmount: booking.OriginalAmount,
		DiscountAmount: booking.DiscountAmount,
		TotalAmount:    booking.TotalAmount,
		CouponApplied:  result.CouponApplied,
		ExpiresAt:      booking.CreatedAt.Add(s.config.PendingExpiry),
	}
	if result.CouponRejection != nil {
		reason := result.CouponRejection.ReasonCode()
		resp.CouponRejection = &reason
	}

	session, err := s.gateway.CreateCheckout(ctx, booking, meta)
	if err != nil {
		msg := err.Error()
		resp.CheckoutError = &msg
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Booking created without checkout session")
		return resp, nil
	}

	resp.OrderReference = &session.OrderReference
	resp.CheckoutURL = &session.CheckoutURL
	return resp, nil
}

// CreateCheckout opens (or reuses) a checkout session for the user's booking
func (s *ReconciliationService) CreateCheckout(ctx context.Context, bookingID, userID uuid.UUID, meta models.RequestMeta) (*models.CheckoutSession, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateCheckout(ctx, booking, meta)
}

// CancelBooking cancels the user's pending booking and notifies them
func (s *ReconciliationService) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, reason string) (*models.Booking, error) {
	booking, err := s.bookings.CancelBooking(ctx, bookingID, userID, reason)
	if err != nil {
		return nil, err
	}

	s.audits.Record(ctx, models.NewPaymentAudit(models.PaymentEventBookingCancelled, models.PaymentSourceUser).
		SetBooking(booking.ID).
		SetOutcome(models.OutcomeReconciled))
	s.notifier.NotifyBookingCancelled(booking, stringValue(booking.CancelReason))

	return booking, nil
}

// HandleCallback verifies a gateway callback and applies it.
// Callbacks with a bad signature are audited and rejected with ErrSignatureInvalid.
func (s *ReconciliationService) HandleCallback(ctx context.Context, rawBody []byte, signature string, meta models.RequestMeta) (*models.WebhookResponse, error) {
	received := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
		SetRawBody(string(rawBody))
	s.audits.RecordWithMeta(ctx, received, meta)

	event, err := s.gateway.VerifyCallback(rawBody, signature)
	if err != nil {
		if errors.Is(err, models.ErrSignatureInvalid) {
			code := "SIGNATURE_INVALID"
			audit := models.NewPaymentAudit(models.PaymentEventSignatureInvalid, models.PaymentSourceWebhook).
				SetRawBody(string(rawBody)).
				SetError(err.Error(), &code)
			s.audits.RecordWithMeta(ctx, audit, meta)

			s.logger.WithFields(logrus.Fields{
				"ip_address": meta.IPAddress,
				"alert":      true,
				"alert_type": "possible_tamper",
			}).Warn("Rejected payment callback with invalid signature")
		}
		return nil, err
	}

	outcome, err := s.reconcile(ctx, event, models.PaymentSourceWebhook)
	if err != nil {
		return nil, err
	}

	return &models.WebhookResponse{
		Outcome:        outcome,
		OrderReference: event.OrderReference,
	}, nil
}

// HandlePaymentEvent applies a normalised payment event for an order.
// Expected races are typed outcomes, not errors: a repeated event is
// AlreadyReconciled and an event contradicting a terminal state is
// InvalidTransition. Errors are reserved for infrastructure failures and
// for failed compensation, which is also raised as an alert.
func (s *ReconciliationService) HandlePaymentEvent(ctx context.Context, orderReference string, status models.PaymentEventStatus) (models.ReconcileOutcome, error) {
	return s.reconcile(ctx, &models.VerifiedEvent{
		OrderReference: orderReference,
		Status:         status,
	}, models.PaymentSourceSystem)
}

func (s *ReconciliationService) reconcile(ctx context.Context, event *models.VerifiedEvent, source models.PaymentEventSource) (models.ReconcileOutcome, error) {
	start := s.now()
	log := s.logger.WithFields(logrus.Fields{
		"order_reference": event.OrderReference,
		"event_status":    event.Status,
		"source":          source,
	})

	if !event.Status.IsSuccess() && !event.Status.IsFailure() {
		log.Debug("Ignoring non-terminal payment event")
		return models.OutcomeIgnored, nil
	}

	payment, err := s.uow.Store().Payments().GetByOrderReference(ctx, event.OrderReference)
	if err != nil {
		return "", err
	}
	if payment == nil {
		log.Warn("Payment event for unknown order")
		s.audits.Record(ctx, models.NewPaymentAudit(eventTypeFor(event.Status), source).
			SetOrderReference(event.OrderReference).
			SetOutcome(models.OutcomeUnknownOrder))
		return models.OutcomeUnknownOrder, nil
	}

	if payment.Status.IsTerminal() {
		outcome := terminalOutcome(payment.Status, event.Status)
		s.recordOutcome(ctx, payment, event, source, outcome, start)
		return outcome, nil
	}

	if event.Status.IsSuccess() && event.Amount != nil && *event.Amount != payment.Amount {
		audit := models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, source).
			SetPayment(payment).
			SetOutcome(models.OutcomeInvalidTransition)
		audit.SetAmounts(payment.Amount, *event.Amount)
		s.audits.Record(ctx, audit)

		log.WithFields(logrus.Fields{
			"expected_amount": payment.Amount,
			"received_amount": *event.Amount,
			"alert":           true,
			"alert_type":      "amount_mismatch",
		}).Error("Paid amount does not match payment; booking left pending for review")
		return models.OutcomeInvalidTransition, nil
	}

	target := event.Status.PaymentStatusFor()
	outcome := models.OutcomeReconciled
	var booking *models.Booking

	err = s.uow.WithinTx(ctx, func(tx repository.Store) error {
		var failure *string
		if event.Status.IsFailure() {
			reason := fmt.Sprintf("gateway reported %s", event.Status)
			failure = &reason
		}

		// Booking row first, then payment: the same order as expiry and cancel
		locked, err := tx.Bookings().GetForUpdate(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		if locked == nil {
			return fmt.Errorf("booking %s of payment %s not found", payment.BookingID, payment.ID)
		}

		moved, err := tx.Payments().TransitionStatus(ctx, payment.ID, models.PaymentStatusPending, target, failure)
		if err != nil {
			return err
		}
		if !moved {
			// A concurrent event got there first
			current, err := tx.Payments().GetByOrderReference(ctx, event.OrderReference)
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("payment %s disappeared during reconciliation", payment.ID)
			}
			outcome = terminalOutcome(current.Status, event.Status)
			return nil
		}
		payment.Status = target
		booking = locked

		if event.Status.IsSuccess() {
			confirmed, err := s.bookings.ConfirmTx(ctx, tx, booking)
			if err != nil {
				return err
			}
			if !confirmed {
				return errBookingNotPending
			}
			return nil
		}

		err = s.bookings.CancelTx(ctx, tx, booking, cancelReasonFor(event.Status))
		if errors.Is(err, models.ErrInvalidTransition) {
			// Booking already terminal; the payment still records the failure
			outcome = models.OutcomeAlreadyReconciled
			booking = nil
			return nil
		}
		return err
	})

	switch {
	case errors.Is(err, errBookingNotPending):
		outcome = models.OutcomeInvalidTransition
		booking = nil
		log.WithField("booking_id", payment.BookingID).Warn("Payment succeeded for a booking that is no longer pending")
	case errors.Is(err, models.ErrCompensationFailed):
		alertCompensationFailure(s.logger, err, logrus.Fields{
			"order_reference": event.OrderReference,
			"booking_id":      payment.BookingID,
			"operation":       "payment_failure",
		})
		s.recordError(ctx, payment, event, source, err)
		return "", err
	case err != nil:
		log.WithError(err).Error("Failed to reconcile payment event")
		s.recordError(ctx, payment, event, source, err)
		return "", err
	}

	s.recordOutcome(ctx, payment, event, source, outcome, start)

	if outcome == models.OutcomeReconciled && booking != nil {
		if booking.Status == models.BookingStatusConfirmed {
			s.audits.Record(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmed, source).SetPayment(payment))
			s.notifier.NotifyBookingConfirmed(booking)
		} else {
			s.audits.Record(ctx, models.NewPaymentAudit(models.PaymentEventBookingCancelled, source).SetPayment(payment))
			s.notifier.NotifyBookingCancelled(booking, stringValue(booking.CancelReason))
		}
	}

	log.WithField("outcome", outcome).Info("Payment event reconciled")
	return outcome, nil
}

// terminalOutcome classifies an event against a payment that is already terminal
func terminalOutcome(current models.PaymentStatus, event models.PaymentEventStatus) models.ReconcileOutcome {
	switch {
	case current == models.PaymentStatusCompleted && event.IsSuccess():
		return models.OutcomeAlreadyReconciled
	case current != models.PaymentStatusCompleted && event.IsFailure():
		return models.OutcomeAlreadyReconciled
	default:
		return models.OutcomeInvalidTransition
	}
}

func cancelReasonFor(status models.PaymentEventStatus) string {
	if status == models.PaymentEventStatusCancelled {
		return models.CancelReasonPaymentCancel
	}
	return models.CancelReasonPaymentFailed
}

func eventTypeFor(status models.PaymentEventStatus) models.PaymentEventType {
	switch status {
	case models.PaymentEventStatusSuccess:
		return models.PaymentEventSuccess
	case models.PaymentEventStatusCancelled:
		return models.PaymentEventCancelled
	default:
		return models.PaymentEventFailed
	}
}

func (s *ReconciliationService) recordOutcome(ctx context.Context, payment *models.Payment, event *models.VerifiedEvent, source models.PaymentEventSource, outcome models.ReconcileOutcome, start time.Time) {
	audit := models.NewPaymentAudit(eventTypeFor(event.Status), source).
		SetPayment(payment).
		SetOutcome(outcome).
		SetProcessingTime(start)
	if event.Amount != nil {
		audit.SetAmounts(payment.Amount, *event.Amount)
	}
	if event.GatewayTransactionID != nil {
		audit.SetGatewayTransactionID(*event.GatewayTransactionID)
	}
	s.audits.Record(ctx, audit)
}

func (s *ReconciliationService) recordError(ctx context.Context, payment *models.Payment, event *models.VerifiedEvent, source models.PaymentEventSource, err error) {
	s.audits.Record(ctx, models.NewPaymentAudit(models.PaymentEventError, source).
		SetPayment(payment).
		SetPaymentStatus(string(event.Status)).
		SetError(err.Error(), nil))
}

// ExpirePendingBookings cancels bookings that stayed pending longer than
// olderThan, releasing their slots and coupon uses and cancelling their
// pending payments. A payment event arriving later is InvalidTransition.
func (s *ReconciliationService) ExpirePendingBookings(ctx context.Context, olderThan time.Duration) (*models.ExpirySweepResult, error) {
	cutoff := s.now().Add(-olderThan)
	candidates, err := s.uow.Store().Bookings().ListPendingCreatedBefore(ctx, cutoff, s.config.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}

	result := &models.ExpirySweepResult{Scanned: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	s.logger.WithField("count", len(candidates)).Info("Processing expired bookings")

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		booking, cancelled, err := s.expireBooking(ctx, candidate.ID, cutoff)
		switch {
		case errors.Is(err, models.ErrCompensationFailed):
			result.Failed++
			alertCompensationFailure(s.logger, err, logrus.Fields{
				"booking_id": candidate.ID,
				"operation":  "expire_booking",
			})
		case err != nil:
			result.Failed++
			s.logger.WithError(err).WithField("booking_id", candidate.ID).Error("Failed to expire booking")
		case booking == nil:
			result.Skipped++
		default:
			result.Expired++
			eventType := models.PaymentEventBookingCancelled
			if cancelled > 0 {
				eventType = models.PaymentEventExpired
			}
			s.audits.Record(ctx, models.NewPaymentAudit(eventType, models.PaymentSourceSystem).
				SetBooking(booking.ID).
				SetOutcome(models.OutcomeReconciled))
			s.notifier.NotifyBookingCancelled(booking, models.CancelReasonExpired)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"scanned": result.Scanned,
		"expired": result.Expired,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("Expiry sweep finished")

	return result, nil
}

// expireBooking cancels one booking if it is still pending and past cutoff.
// Returns a nil booking when there was nothing to do.
func (s *ReconciliationService) expireBooking(ctx context.Context, bookingID uuid.UUID, cutoff time.Time) (*models.Booking, int64, error) {
	var (
		booking   *models.Booking
		cancelled int64
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if current == nil || !current.IsPending() || current.CreatedAt.After(cutoff) {
			return nil
		}

		if err := s.bookings.CancelTx(ctx, tx, current, models.CancelReasonExpired); err != nil {
			return err
		}

		cancelled, err = tx.Payments().CancelPendingForBooking(ctx, current.ID, models.CancelReasonExpired)
		if err != nil {
			return err
		}
		booking = current
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return booking, cancelled, nil
}

// PollPendingPayments asks the gateway about payments that have been pending
// for a while and applies any terminal status, covering lost callbacks.
func (s *ReconciliationService) PollPendingPayments(ctx context.Context) (*models.PaymentPollResult, error) {
	cutoff := s.now().Add(-s.config.PaymentPollAfter)
	payments, err := s.uow.Store().Payments().ListPendingCreatedBefore(ctx, cutoff, s.config.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	result := &models.PaymentPollResult{}
	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		status, err := s.gateway.CheckStatus(ctx, payment.OrderReference)
		if err != nil {
			result.Failed++
			s.logger.WithError(err).WithField("order_reference", payment.OrderReference).Warn("Failed to poll payment status")
			continue
		}
		if status.Status == models.PaymentEventStatusPending {
			continue
		}

		amount := status.Amount
		event := &models.VerifiedEvent{
			OrderReference: payment.OrderReference,
			Status:         status.Status,
		}
		if amount > 0 {
			event.Amount = &amount
		}

		outcome, err := s.reconcile(ctx, event, models.PaymentSourceGatewayAPI)
		if err != nil {
			result.Failed++
			continue
		}
		if outcome == models.OutcomeReconciled {
			result.Reconciled++
		}
	}

	if result.Checked > 0 {
		s.logger.WithFields(logrus.Fields{
			"checked":    result.Checked,
			"reconciled": result.Reconciled,
			"failed":     result.Failed,
		}).Info("Pending payment poll finished")
	}

	return result, nil
}

// PaymentReturn reports the state of an order when the user lands back from the gateway.
// It never changes state; only callbacks and polling do.
func (s *ReconciliationService) PaymentReturn(ctx context.Context, orderReference string) (*models.PaymentReturnResponse, error) {
	payment, err := s.uow.Store().Payments().GetByOrderReference(ctx, orderReference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, models.ErrPaymentNotFound
	}

	booking, err := s.uow.Store().Bookings().GetByID(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}

	return &models.PaymentReturnResponse{
		OrderReference: payment.OrderReference,
		PaymentStatus:  payment.Status,
		BookingID:      booking.ID,
		BookingStatus:  booking.Status,
	}, nil
}
