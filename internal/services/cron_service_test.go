package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/models"
)

func TestCronService_StartRegistersJobs(t *testing.T) {
	env := newTestEnv(nil)
	cfg := &config.BookingConfig{
		PendingExpiry:       15 * time.Minute,
		SweepBatchSize:      10,
		ExpirySchedule:      "0 * * * * *",
		PaymentPollSchedule: "30 */2 * * * *",
	}

	cronSvc := NewCronService(env.reconciler, cfg, testLogger())
	require.NoError(t, cronSvc.Start())
	defer cronSvc.Stop()

	status := cronSvc.GetJobStatus()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, 2, status["job_count"])

	names := make([]string, 0, 2)
	for _, job := range status["jobs"].([]map[string]interface{}) {
		names = append(names, job["name"].(string))
	}
	assert.ElementsMatch(t, []string{jobExpirePendingBookings, jobPollPendingPayments}, names)
}

func TestCronService_InvalidSchedule(t *testing.T) {
	env := newTestEnv(nil)
	cfg := &config.BookingConfig{
		ExpirySchedule:      "not a schedule",
		PaymentPollSchedule: "0 * * * * *",
	}

	cronSvc := NewCronService(env.reconciler, cfg, testLogger())
	err := cronSvc.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobExpirePendingBookings)
}

func TestCronService_RunExpireNow(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	combo := env.db.addCombo(1000, 5, 5)

	result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
		UserID: uuid.New(), ComboID: combo.ID, Quantity: 2,
	})
	require.NoError(t, err)
	env.db.ageBooking(result.Booking.ID, time.Hour)

	cfg := &config.BookingConfig{PendingExpiry: 15 * time.Minute, SweepBatchSize: 10}
	cronSvc := NewCronService(env.reconciler, cfg, testLogger())

	sweep, err := cronSvc.RunExpireNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Expired)
	assert.Equal(t, 5, env.db.combo(combo.ID).AvailableSlots)

	env.notifier.Wait()
}

func TestBookingExpirationService_RunOnce(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	combo := env.db.addCombo(1000, 5, 5)

	result, err := env.bookings.CreateBooking(ctx, &models.CreateBookingRequest{
		UserID: uuid.New(), ComboID: combo.ID, Quantity: 1,
	})
	require.NoError(t, err)
	env.db.ageBooking(result.Booking.ID, time.Hour)

	svc := NewBookingExpirationService(env.reconciler, &config.BookingConfig{
		PendingExpiry: 15 * time.Minute,
		SweepInterval: time.Minute,
	}, testLogger())

	sweep := svc.RunOnce()
	require.NotNil(t, sweep)
	assert.Equal(t, 1, sweep.Expired)
	assert.Equal(t, models.BookingStatusCancelled, env.db.booking(result.Booking.ID).Status)

	// Stop is safe to call more than once
	svc.Stop()
	svc.Stop()

	env.notifier.Wait()
}
