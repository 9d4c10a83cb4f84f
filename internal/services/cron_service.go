package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tourhub/booking-backend/internal/config"
	"github.com/tourhub/booking-backend/internal/models"
)

const (
	jobExpirePendingBookings = "expire_pending_bookings"
	jobPollPendingPayments   = "poll_pending_payments"
)

// jobTimeout bounds a single scheduled run
const jobTimeout = 2 * time.Minute

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	reconciler *ReconciliationService
	config     *config.BookingConfig
	logger     *logrus.Logger

	mu      sync.Mutex
	entries map[cron.EntryID]string
}

// NewCronService creates a new CronService
func NewCronService(reconciler *ReconciliationService, cfg *config.BookingConfig, logger *logrus.Logger) *CronService {
	// Seconds precision; a job still running when its next tick fires is skipped
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &CronService{
		cron:       c,
		reconciler: reconciler,
		config:     cfg,
		logger:     logger,
		entries:    make(map[cron.EntryID]string),
	}
}

// Start registers and starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service")

	if err := s.schedule(jobExpirePendingBookings, s.config.ExpirySchedule, s.expirePendingBookingsJob); err != nil {
		return err
	}
	if err := s.schedule(jobPollPendingPayments, s.config.PaymentPollSchedule, s.pollPendingPaymentsJob); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

func (s *CronService) schedule(name, spec string, job func()) error {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", name, err)
	}

	s.mu.Lock()
	s.entries[id] = name
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"schedule": spec,
	}).Info("Scheduled cron job")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) expirePendingBookingsJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := s.reconciler.ExpirePendingBookings(ctx, s.config.PendingExpiry)
	if err != nil {
		s.logger.WithError(err).WithField("job", jobExpirePendingBookings).Error("Cron job failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"job":      jobExpirePendingBookings,
		"expired":  result.Expired,
		"duration": time.Since(startTime).String(),
	}).Debug("Cron job finished")
}

func (s *CronService) pollPendingPaymentsJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := s.reconciler.PollPendingPayments(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("job", jobPollPendingPayments).Error("Cron job failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"job":        jobPollPendingPayments,
		"checked":    result.Checked,
		"reconciled": result.Reconciled,
		"duration":   time.Since(startTime).String(),
	}).Debug("Cron job finished")
}

// RunExpireNow runs the expiry sweep immediately (admin trigger)
func (s *CronService) RunExpireNow(ctx context.Context) (*models.ExpirySweepResult, error) {
	s.logger.WithField("job", jobExpirePendingBookings).Info("Running job manually")
	return s.reconciler.ExpirePendingBookings(ctx, s.config.PendingExpiry)
}

// RunPollNow runs the pending payment poll immediately (admin trigger)
func (s *CronService) RunPollNow(ctx context.Context) (*models.PaymentPollResult, error) {
	s.logger.WithField("job", jobPollPendingPayments).Info("Running job manually")
	return s.reconciler.PollPendingPayments(ctx)
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"name":     s.entries[entry.ID],
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
