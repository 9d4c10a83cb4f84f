package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/repository"
)

// maxDescriptionLength is the longest description the gateway accepts
const maxDescriptionLength = 25

// gatewaySuccessCode is the provider's "00" success code
const gatewaySuccessCode = "00"

const minCheckoutStaleAfter = 30 * time.Second

// PaymentGatewayService integrates with the hosted payment-link gateway.
// It creates checkout sessions, verifies signed callbacks and polls order status.
type PaymentGatewayService struct {
	config    *config.PaymentConfig
	uow       repository.UnitOfWork
	audits    *PaymentAuditService
	logger    *logrus.Logger
	client    *http.Client
	now       func() time.Time
	orderCode func() int64
}

// paymentLinkRequest is the body of POST /v2/payment-requests
type paymentLinkRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	Signature   string `json:"signature"`
}

// gatewayEnvelope wraps every gateway response
type gatewayEnvelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

type paymentLinkData struct {
	CheckoutURL   string `json:"checkoutUrl"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
}

type paymentStatusData struct {
	OrderCode int64  `json:"orderCode"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// callbackPayload is the signed body the gateway posts to the webhook
type callbackPayload struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Success bool   `json:"success"`
	Data    struct {
		OrderCode     int64  `json:"orderCode"`
		Amount        int64  `json:"amount"`
		Reference     string `json:"reference"`
		PaymentLinkID string `json:"paymentLinkId"`
		Status        string `json:"status"`
	} `json:"data"`
}

// NewPaymentGatewayService creates a new payment gateway service
func NewPaymentGatewayService(
	cfg *config.PaymentConfig,
	uow repository.UnitOfWork,
	audits *PaymentAuditService,
	logger *logrus.Logger,
) *PaymentGatewayService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaymentGatewayService{
		config: cfg,
		uow:    uow,
		audits: audits,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
		now:       time.Now,
		orderCode: newOrderCode,
	}
}

// newOrderCode returns a numeric order code unique enough for the gateway:
// the current unix milliseconds with three random digits appended.
func newOrderCode() int64 {
	return time.Now().UnixMilli()*1000 + rand.Int63n(1000)
}

// checkoutStaleAfter is how long a payment without a checkout URL counts as
// in flight. Past it the request that created it is assumed dead.
func (s *PaymentGatewayService) checkoutStaleAfter() time.Duration {
	if s.client.Timeout <= 0 {
		return minCheckoutStaleAfter
	}
	if d := 2 * s.client.Timeout; d > minCheckoutStaleAfter {
		return d
	}
	return minCheckoutStaleAfter
}

// IsConfigured returns true if the gateway credentials are set
func (s *PaymentGatewayService) IsConfigured() bool {
	return s.config.ClientID != "" && s.config.APIKey != "" && s.config.ChecksumKey != ""
}

// CreateCheckout opens a checkout session for a pending booking.
// The pending payment row is written before the gateway is called so a
// callback can never arrive for an order we do not know. An existing pending
// payment with a checkout URL for the same amount is reused.
func (s *PaymentGatewayService) CreateCheckout(ctx context.Context, booking *models.Booking, meta models.RequestMeta) (*models.CheckoutSession, error) {
	if !booking.IsPending() {
		return nil, fmt.Errorf("%w: booking %s is %s", models.ErrInvalidTransition, booking.ID, booking.Status)
	}
	if !s.IsConfigured() {
		return nil, &models.GatewayError{Message: "payment gateway not configured"}
	}

	var (
		payment   *models.Payment
		orderCode int64
		reused    bool
	)
	err := s.uow.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Bookings().GetForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return models.ErrBookingNotFound
		}
		if !current.IsPending() {
			return fmt.Errorf("%w: booking %s is %s", models.ErrInvalidTransition, current.ID, current.Status)
		}

		existing, err := tx.Payments().GetPendingByBookingID(ctx, current.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.CheckoutURL != nil && existing.Amount == current.TotalAmount {
				payment = existing
				reused = true
				return nil
			}
			// Another request is still waiting on the gateway for this payment;
			// its link may already be in the customer's hands.
			if existing.CheckoutURL == nil && existing.CreatedAt.After(s.now().Add(-s.checkoutStaleAfter())) {
				return fmt.Errorf("%w: order %s", models.ErrCheckoutInProgress, existing.OrderReference)
			}
			superseded := "superseded by a new checkout"
			if _, err := tx.Payments().TransitionStatus(ctx, existing.ID, models.PaymentStatusPending, models.PaymentStatusCancelled, &superseded); err != nil {
				return err
			}
		}

		now := s.now()
		orderCode = s.orderCode()
		payment = &models.Payment{
			ID:             uuid.New(),
			BookingID:      current.ID,
			Amount:         current.TotalAmount,
			Method:         models.PaymentMethodGateway,
			Status:         models.PaymentStatusPending,
			OrderReference: strconv.FormatInt(orderCode, 10),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.Payments().Create(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	if reused {
		s.audits.RecordWithMeta(ctx, models.NewPaymentAudit(models.PaymentEventCheckoutReused, models.PaymentSourceUser).
			SetPayment(payment), meta)
		return checkoutSession(payment, *payment.CheckoutURL, true), nil
	}

	start := s.now()
	link, err := s.createPaymentLink(ctx, orderCode, payment.Amount)
	if err != nil {
		reason := err.Error()
		if _, terr := s.uow.Store().Payments().TransitionStatus(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusFailed, &reason); terr != nil {
			s.logger.WithError(terr).WithField("payment_id", payment.ID).Error("Failed to mark payment failed after gateway error")
		}

		audit := models.NewPaymentAudit(models.PaymentEventCheckoutFailed, models.PaymentSourceGatewayAPI).
			SetPayment(payment).
			SetError(reason, nil).
			SetProcessingTime(start)
		s.audits.RecordWithMeta(ctx, audit, meta)

		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id":      booking.ID,
			"order_reference": payment.OrderReference,
		}).Error("Failed to create checkout session")
		return nil, err
	}

	if err := s.uow.Store().Payments().SetCheckoutDetails(ctx, payment.ID, link.PaymentLinkID, link.CheckoutURL); err != nil {
		return nil, err
	}
	payment.GatewayLinkID = &link.PaymentLinkID
	payment.CheckoutURL = &link.CheckoutURL

	audit := models.NewPaymentAudit(models.PaymentEventCheckoutCreated, models.PaymentSourceGatewayAPI).
		SetPayment(payment).
		SetResponsePayload(map[string]interface{}{
			"checkout_url":    link.CheckoutURL,
			"payment_link_id": link.PaymentLinkID,
			"status":          link.Status,
		}).
		SetProcessingTime(start)
	s.audits.RecordWithMeta(ctx, audit, meta)

	s.logger.WithFields(logrus.Fields{
		"booking_id":      booking.ID,
		"order_reference": payment.OrderReference,
		"amount":          payment.Amount,
	}).Info("Checkout session created")

	return checkoutSession(payment, link.CheckoutURL, false), nil
}

func checkoutSession(p *models.Payment, url string, reused bool) *models.CheckoutSession {
	return &models.CheckoutSession{
		PaymentID:      p.ID,
		BookingID:      p.BookingID,
		OrderReference: p.OrderReference,
		Amount:         p.Amount,
		CheckoutURL:    url,
		Reused:         reused,
	}
}

// createPaymentLink calls the gateway to create a hosted payment link
func (s *PaymentGatewayService) createPaymentLink(ctx context.Context, orderCode, amount int64) (*paymentLinkData, error) {
	description := s.description(orderCode)
	req := &paymentLinkRequest{
		OrderCode:   orderCode,
		Amount:      amount,
		Description: description,
		CancelURL:   s.config.CancelURL,
		ReturnURL:   s.config.ReturnURL,
	}
	req.Signature = s.sign(checkoutSignatureData(req))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(s.config.BaseURL, "/") + "/v2/payment-requests"
	envelope, err := s.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	var data paymentLinkData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &models.GatewayError{StatusCode: http.StatusOK, Code: envelope.Code, Message: "malformed payment link data"}
	}
	if data.CheckoutURL == "" {
		return nil, &models.GatewayError{StatusCode: http.StatusOK, Code: envelope.Code, Message: "no checkout URL returned"}
	}

	return &data, nil
}

// CheckStatus queries the gateway for the current state of an order
func (s *PaymentGatewayService) CheckStatus(ctx context.Context, orderReference string) (*models.GatewayStatus, error) {
	start := s.now()
	endpoint := strings.TrimRight(s.config.BaseURL, "/") + "/v2/payment-requests/" + orderReference

	envelope, err := s.do(ctx, http.MethodGet, endpoint, nil)
	audit := models.NewPaymentAudit(models.PaymentEventStatusCheckResponse, models.PaymentSourceGatewayAPI).
		SetOrderReference(orderReference)
	if err != nil {
		s.audits.Record(ctx, audit.SetError(err.Error(), nil).SetProcessingTime(start))
		return nil, err
	}

	var data paymentStatusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &models.GatewayError{StatusCode: http.StatusOK, Code: envelope.Code, Message: "malformed payment status data"}
	}

	status := &models.GatewayStatus{
		OrderReference: orderReference,
		Status:         mapGatewayStatus(data.Status, envelope.Code),
		RawStatus:      data.Status,
		Amount:         data.Amount,
	}

	s.audits.Record(ctx, audit.
		SetPaymentStatus(data.Status).
		SetResponsePayload(map[string]interface{}{"status": data.Status, "amount": data.Amount}).
		SetProcessingTime(start))

	return status, nil
}

// do sends an authenticated request and unwraps the response envelope.
// A non-2xx response or a non-"00" code becomes a *models.GatewayError.
func (s *PaymentGatewayService) do(ctx context.Context, method, endpoint string, body []byte) (*gatewayEnvelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", s.config.ClientID)
	req.Header.Set("x-api-key", s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &models.GatewayError{Message: fmt.Sprintf("failed to call payment gateway: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.GatewayError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	s.logger.WithFields(logrus.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": resp.StatusCode,
	}).Debug("Payment gateway response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.GatewayError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var envelope gatewayEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &models.GatewayError{StatusCode: resp.StatusCode, Message: "failed to parse response"}
	}
	if envelope.Code != gatewaySuccessCode {
		return nil, &models.GatewayError{StatusCode: resp.StatusCode, Code: envelope.Code, Message: envelope.Desc}
	}

	return &envelope, nil
}

// VerifyCallback checks the callback signature over the raw body and
// normalises the payload. A missing or wrong signature yields ErrSignatureInvalid.
func (s *PaymentGatewayService) VerifyCallback(rawBody []byte, signature string) (*models.VerifiedEvent, error) {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" || s.config.ChecksumKey == "" {
		return nil, models.ErrSignatureInvalid
	}

	expected := s.sign(string(rawBody))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, models.ErrSignatureInvalid
	}

	var payload callbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCallback, err)
	}
	if payload.Data.OrderCode <= 0 {
		return nil, fmt.Errorf("%w: missing orderCode", models.ErrInvalidCallback)
	}

	status := mapGatewayStatus(payload.Data.Status, payload.Code)
	if payload.Data.Status == "" && payload.Code == gatewaySuccessCode && !payload.Success {
		status = models.PaymentEventStatusFailed
	}

	event := &models.VerifiedEvent{
		OrderReference: strconv.FormatInt(payload.Data.OrderCode, 10),
		Status:         status,
		GatewayCode:    payload.Code,
	}
	if payload.Data.Amount > 0 {
		amount := payload.Data.Amount
		event.Amount = &amount
	}
	if payload.Data.Reference != "" {
		ref := payload.Data.Reference
		event.GatewayTransactionID = &ref
	}

	s.logger.WithFields(logrus.Fields{
		"order_reference": event.OrderReference,
		"status":          event.Status,
		"gateway_code":    payload.Code,
	}).Info("Payment callback verified")

	return event, nil
}

// mapGatewayStatus normalises a gateway status string. Without an explicit
// status the result code decides: "00" is success, anything else a failure.
func mapGatewayStatus(raw, code string) models.PaymentEventStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID":
		return models.PaymentEventStatusSuccess
	case "CANCELLED", "EXPIRED":
		return models.PaymentEventStatusCancelled
	case "PENDING", "PROCESSING":
		return models.PaymentEventStatusPending
	case "":
		if code == gatewaySuccessCode {
			return models.PaymentEventStatusSuccess
		}
		return models.PaymentEventStatusFailed
	default:
		return models.PaymentEventStatusFailed
	}
}

// checkoutSignatureData builds the alphabetically ordered string the gateway signs
func checkoutSignatureData(req *paymentLinkRequest) string {
	return fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL)
}

// sign returns the hex HMAC-SHA256 of data under the checksum key
func (s *PaymentGatewayService) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(s.config.ChecksumKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PaymentGatewayService) description(orderCode int64) string {
	d := strings.TrimSpace(fmt.Sprintf("%s %d", s.config.DescriptionPrefix, orderCode))
	if len(d) > maxDescriptionLength {
		d = d[len(d)-maxDescriptionLength:]
	}
	return d
}
