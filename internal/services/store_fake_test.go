package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/models"
	"github.com/tourhub/booking-backend/internal/repository"
	"github.com/tourhub/booking-backend/pkg/notify"
)

// memDB is an in-memory stand-in for Postgres. Transactions are serialised
// and roll back by restoring a snapshot, which is enough to exercise the
// conditional-update and unit-of-work semantics of the services.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	combos         map[uuid.UUID]models.ServiceCombo
	coupons        map[uuid.UUID]models.Coupon
	bookings       map[uuid.UUID]models.Booking
	bookingCoupons map[uuid.UUID]models.BookingCoupon
	payments       map[uuid.UUID]models.Payment
	audits         []models.PaymentAudit

	// failIncrementSlots makes IncrementSlots fail, simulating a broken compensation
	failIncrementSlots error
}

type memSnapshot struct {
	combos         map[uuid.UUID]models.ServiceCombo
	coupons        map[uuid.UUID]models.Coupon
	bookings       map[uuid.UUID]models.Booking
	bookingCoupons map[uuid.UUID]models.BookingCoupon
	payments       map[uuid.UUID]models.Payment
}

func newMemDB() *memDB {
	return &memDB{
		combos:         make(map[uuid.UUID]models.ServiceCombo),
		coupons:        make(map[uuid.UUID]models.Coupon),
		bookings:       make(map[uuid.UUID]models.Booking),
		bookingCoupons: make(map[uuid.UUID]models.BookingCoupon),
		payments:       make(map[uuid.UUID]models.Payment),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		combos:         copyMap(db.combos),
		coupons:        copyMap(db.coupons),
		bookings:       copyMap(db.bookings),
		bookingCoupons: copyMap(db.bookingCoupons),
		payments:       copyMap(db.payments),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.combos = s.combos
	db.coupons = s.coupons
	db.bookings = s.bookings
	db.bookingCoupons = s.bookingCoupons
	db.payments = s.payments
}

// UnitOfWork

func (db *memDB) Store() repository.Store { return memStore{db} }

func (db *memDB) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(memStore{db}); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

type memStore struct{ db *memDB }

func (s memStore) Combos() repository.ComboRepository               { return memCombos(s) }
func (s memStore) Coupons() repository.CouponRepository             { return memCoupons(s) }
func (s memStore) Bookings() repository.BookingRepository           { return memBookings(s) }
func (s memStore) Payments() repository.PaymentRepository           { return memPayments(s) }
func (s memStore) PaymentAudits() repository.PaymentAuditRepository { return memAudits(s) }

// combos

type memCombos struct{ db *memDB }

func (r memCombos) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceCombo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.combos[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r memCombos) DecrementSlots(ctx context.Context, id uuid.UUID, qty int) (*models.ServiceCombo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.combos[id]
	if !ok || c.Status != models.ComboStatusOpen || c.AvailableSlots < qty {
		return nil, nil
	}
	c.AvailableSlots -= qty
	r.db.combos[id] = c
	return &c, nil
}

func (r memCombos) IncrementSlots(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failIncrementSlots != nil {
		return false, r.db.failIncrementSlots
	}
	c, ok := r.db.combos[id]
	if !ok {
		return false, nil
	}
	c.AvailableSlots += qty
	if c.AvailableSlots > c.Capacity {
		c.AvailableSlots = c.Capacity
	}
	r.db.combos[id] = c
	return true, nil
}

// coupons

type memCoupons struct{ db *memDB }

func (r memCoupons) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, nil
}

func (r memCoupons) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.coupons[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r memCoupons) IncrementUsage(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.coupons[id]
	if !ok || !c.IsActive || !c.ExpiryDate.After(now) || c.UsageCount >= c.UsageLimit {
		return false, nil
	}
	c.UsageCount++
	r.db.coupons[id] = c
	return true, nil
}

func (r memCoupons) DecrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.coupons[id]
	if !ok || c.UsageCount <= 0 {
		return false, nil
	}
	c.UsageCount--
	r.db.coupons[id] = c
	return true, nil
}

func (r memCoupons) InsertBookingCoupon(ctx context.Context, bc *models.BookingCoupon) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.bookingCoupons[bc.BookingID]; ok {
		return false, nil
	}
	r.db.bookingCoupons[bc.BookingID] = *bc
	return true, nil
}

func (r memCoupons) DeleteBookingCoupon(ctx context.Context, bookingID, couponID uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	bc, ok := r.db.bookingCoupons[bookingID]
	if !ok || bc.CouponID != couponID {
		return false, nil
	}
	delete(r.db.bookingCoupons, bookingID)
	return true, nil
}

func (r memCoupons) GetBookingCoupon(ctx context.Context, bookingID uuid.UUID) (*models.BookingCoupon, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	bc, ok := r.db.bookingCoupons[bookingID]
	if !ok {
		return nil, nil
	}
	return &bc, nil
}

// bookings

type memBookings struct{ db *memDB }

func (r memBookings) Create(ctx context.Context, booking *models.Booking) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.bookings[booking.ID] = *booking
	return nil
}

func (r memBookings) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r memBookings) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r memBookings) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Booking
	for _, b := range r.db.bookings {
		if b.UserID == userID {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*models.Booking{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memBookings) UpdateAmounts(ctx context.Context, id uuid.UUID, discount, total int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return false, nil
	}
	b.DiscountAmount = discount
	b.TotalAmount = total
	r.db.bookings[id] = b
	return true, nil
}

func (r memBookings) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, reason *string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	now := time.Now()
	b.Status = to
	switch to {
	case models.BookingStatusConfirmed:
		b.ConfirmedAt = &now
	case models.BookingStatusCancelled:
		b.CancelledAt = &now
		b.CancelReason = reason
	}
	r.db.bookings[id] = b
	return true, nil
}

func (r memBookings) MarkSlotsReleased(ctx context.Context, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok || b.SlotsReleasedAt != nil {
		return false, nil
	}
	now := time.Now()
	b.SlotsReleasedAt = &now
	r.db.bookings[id] = b
	return true, nil
}

func (r memBookings) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Booking
	for _, b := range r.db.bookings {
		if b.Status == models.BookingStatusPending && b.CreatedAt.Before(cutoff) {
			b := b
			out = append(out, &b)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// payments

type memPayments struct{ db *memDB }

func (r memPayments) Create(ctx context.Context, payment *models.Payment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payments {
		if p.OrderReference == payment.OrderReference {
			return errors.New("duplicate order reference")
		}
	}
	r.db.payments[payment.ID] = *payment
	return nil
}

func (r memPayments) GetByOrderReference(ctx context.Context, orderReference string) (*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payments {
		if p.OrderReference == orderReference {
			return &p, nil
		}
	}
	return nil, nil
}

func (r memPayments) GetPendingByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusPending {
			return &p, nil
		}
	}
	return nil, nil
}

func (r memPayments) SetCheckoutDetails(ctx context.Context, id uuid.UUID, linkID, checkoutURL string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[id]
	if !ok {
		return errors.New("payment not found")
	}
	p.GatewayLinkID = &linkID
	p.CheckoutURL = &checkoutURL
	r.db.payments[id] = p
	return nil
}

func (r memPayments) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus, reason *string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.FailureReason = reason
	r.db.payments[id] = p
	return true, nil
}

func (r memPayments) CancelPendingForBooking(ctx context.Context, bookingID uuid.UUID, reason string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, p := range r.db.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusCancelled
			p.FailureReason = &reason
			r.db.payments[id] = p
			n++
		}
	}
	return n, nil
}

func (r memPayments) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Payment
	for _, p := range r.db.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			p := p
			out = append(out, &p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// audits

type memAudits struct{ db *memDB }

func (r memAudits) Log(ctx context.Context, audit *models.PaymentAudit) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.audits = append(r.db.audits, *audit)
	return nil
}

func (r memAudits) ListByOrderReference(ctx context.Context, orderReference string) ([]*models.PaymentAudit, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.PaymentAudit
	for _, a := range r.db.audits {
		if a.OrderReference != nil && *a.OrderReference == orderReference {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

// test helpers

func (db *memDB) addCombo(price int64, capacity, available int) models.ServiceCombo {
	c := models.ServiceCombo{
		ID:             uuid.New(),
		Name:           "Ha Long Bay 2D1N",
		Price:          price,
		Capacity:       capacity,
		AvailableSlots: available,
		Status:         models.ComboStatusOpen,
	}
	db.mu.Lock()
	db.combos[c.ID] = c
	db.mu.Unlock()
	return c
}

func (db *memDB) addPercentCoupon(code string, percent int64, limit int) models.Coupon {
	c := models.Coupon{
		ID:              uuid.New(),
		Code:            code,
		DiscountPercent: decimal.NewNullDecimal(decimal.NewFromInt(percent)),
		UsageLimit:      limit,
		ExpiryDate:      time.Now().Add(24 * time.Hour),
		IsActive:        true,
	}
	db.mu.Lock()
	db.coupons[c.ID] = c
	db.mu.Unlock()
	return c
}

func (db *memDB) combo(id uuid.UUID) models.ServiceCombo {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.combos[id]
}

func (db *memDB) coupon(id uuid.UUID) models.Coupon {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.coupons[id]
}

func (db *memDB) booking(id uuid.UUID) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bookings[id]
}

func (db *memDB) paymentByRef(ref string) models.Payment {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, p := range db.payments {
		if p.OrderReference == ref {
			return p
		}
	}
	return models.Payment{}
}

// ageBooking moves a booking's creation time into the past
func (db *memDB) ageBooking(id uuid.UUID, age time.Duration) {
	db.mu.Lock()
	defer db.mu.Unlock()
	b := db.bookings[id]
	b.CreatedAt = b.CreatedAt.Add(-age)
	db.bookings[id] = b
}

func (db *memDB) addPendingPayment(bookingID uuid.UUID, amount int64, ref string) models.Payment {
	p := models.Payment{
		ID:             uuid.New(),
		BookingID:      bookingID,
		Amount:         amount,
		Method:         models.PaymentMethodGateway,
		Status:         models.PaymentStatusPending,
		OrderReference: ref,
		CreatedAt:      time.Now(),
	}
	db.mu.Lock()
	db.payments[p.ID] = p
	db.mu.Unlock()
	return p
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recordingPublisher captures notifications
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event notify.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type testEnv struct {
	db         *memDB
	inventory  *InventoryService
	coupons    *CouponService
	bookings   *BookingService
	gateway    *PaymentGatewayService
	reconciler *ReconciliationService
	notifier   *NotificationService
	publisher  *recordingPublisher
}

func newTestEnv(paymentCfg *config.PaymentConfig) *testEnv {
	if paymentCfg == nil {
		paymentCfg = &config.PaymentConfig{}
	}
	logger := testLogger()
	db := newMemDB()
	publisher := &recordingPublisher{}

	inventory := NewInventoryService(db, logger)
	coupons := NewCouponService(db, logger)
	bookings := NewBookingService(db, inventory, coupons, logger)
	audits := NewPaymentAuditService(db.Store().PaymentAudits(), logger)
	gateway := NewPaymentGatewayService(paymentCfg, db, audits, logger)
	notifier := NewNotificationService(publisher, logger)
	bookingCfg := &config.BookingConfig{
		PendingExpiry:    15 * time.Minute,
		SweepInterval:    time.Minute,
		SweepBatchSize:   100,
		PaymentPollAfter: time.Minute,
	}
	reconciler := NewReconciliationService(db, bookings, gateway, audits, notifier, bookingCfg, logger)

	return &testEnv{
		db:         db,
		inventory:  inventory,
		coupons:    coupons,
		bookings:   bookings,
		gateway:    gateway,
		reconciler: reconciler,
		notifier:   notifier,
		publisher:  publisher,
	}
}

func strPtr(s string) *string { return &s }
